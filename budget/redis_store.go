package budget

import (
	"context"
	_ "embed" // needed for go:embed
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/serplens/lens/alert"
)

//go:embed window.lua
var windowScriptSrc string // embed the lua script content

var windowScript = redis.NewScript(windowScriptSrc)

const (
	windowKey = "serp:budget:window"
	auditKey  = "serp:budget:audit"
)

// redisStore implements Store on Redis so several process instances
// enforce one shared budget. Rollover plus increment runs as a Lua
// script for atomicity; audit rows live in a sorted set scored by unix
// timestamp, which makes retention pruning a range deletion.
type redisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed budget store.
// It expects a pre-configured redis.Cmdable (e.g. redis.Client or
// redis.ClusterClient).
func NewRedisStore(client redis.Cmdable) Store {
	return &redisStore{client: client}
}

// Advance implements Store using the embedded Lua script.
func (s *redisStore) Advance(ctx context.Context, dayKey, monthKey string, amount float64) (Window, error) {
	res, err := windowScript.Run(ctx, s.client,
		[]string{windowKey},
		dayKey, monthKey, strconv.FormatFloat(amount, 'f', -1, 64),
	).Result()
	if err != nil {
		log.Error().Err(err).Msg("budget window script failed")
		return Window{}, fmt.Errorf("budget: redis window script failed: %w", err)
	}

	fields, ok := res.([]any)
	if !ok || len(fields) != 4 {
		return Window{}, fmt.Errorf("budget: unexpected window script result %T", res)
	}

	w := Window{DayKey: dayKey, MonthKey: monthKey}
	if w.DailySpend, err = parseScriptFloat(fields[0]); err != nil {
		return Window{}, err
	}
	if w.MonthlySpend, err = parseScriptFloat(fields[1]); err != nil {
		return Window{}, err
	}
	w.DailyAlert = alert.Level(scriptString(fields[2]))
	w.MonthlyAlert = alert.Level(scriptString(fields[3]))
	return w, nil
}

// SetAlertLevel implements Store for Redis storage.
func (s *redisStore) SetAlertLevel(ctx context.Context, period alert.Period, level alert.Level) error {
	field := "daily_alert"
	if period == alert.PeriodMonthly {
		field = "monthly_alert"
	}
	if err := s.client.HSet(ctx, windowKey, field, string(level)).Err(); err != nil {
		return fmt.Errorf("budget: redis set alert level failed: %w", err)
	}
	return nil
}

// AppendAudit implements Store for Redis storage.
func (s *redisStore) AppendAudit(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("budget: failed to encode audit entry: %w", err)
	}
	err = s.client.ZAdd(ctx, auditKey, redis.Z{
		Score:  float64(e.At.UnixNano()) / 1e9,
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("budget: redis audit append failed: %w", err)
	}
	return nil
}

// PruneAudit implements Store for Redis storage.
func (s *redisStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := float64(olderThan.UnixNano()) / 1e9
	removed, err := s.client.ZRemRangeByScore(ctx, auditKey, "-inf", fmt.Sprintf("(%f", cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("budget: redis audit prune failed: %w", err)
	}
	return removed, nil
}

// Audit implements Store for Redis storage.
func (s *redisStore) Audit(ctx context.Context, since time.Time) ([]Entry, error) {
	min := fmt.Sprintf("%f", float64(since.UnixNano())/1e9)
	members, err := s.client.ZRangeByScore(ctx, auditKey, &redis.ZRangeBy{Min: min, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("budget: redis audit read failed: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		var e Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable audit entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseScriptFloat converts a Lua script return value to float64.
func parseScriptFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("budget: unexpected script number %q: %w", t, err)
		}
		return f, nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("budget: unexpected script value type %T", v)
	}
}

// scriptString converts a Lua script return value to string.
func scriptString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
