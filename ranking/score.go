package ranking

import "time"

// The scoring constants below are policy defaults found empirically.
// Their shape is the contract: visibility is monotonic in position, SERP
// feature ownership adds, competitors above subtract; the specific
// numbers are tunable but stable within a release.

// ctrWeights approximates a click-through-rate curve normalized so that
// position 1 equals 1.0. Positions 1-3 carry most of the weight,
// positions 4-10 decay, and everything past 20 is near zero.
var ctrWeights = [10]float64{1.0, 0.85, 0.72, 0.55, 0.45, 0.38, 0.32, 0.27, 0.23, 0.20}

const (
	// tailStart/tailStep extend the curve across positions 11-20.
	tailStart = 0.18
	tailStep  = 0.016
	// deepTailWeight covers positions beyond 20.
	deepTailWeight = 0.02

	// ownedFeatureBoost is added to the visibility score per SERP
	// feature owned by the target domain.
	ownedFeatureBoost = 12.0

	// competitorPenalty is subtracted per competitor ranking above the
	// target.
	competitorPenalty = 4.0
)

// AI-citation-likelihood factor weights; they sum to 100.
const (
	weightPosition    = 35.0
	weightFeatures    = 20.0
	weightCompetitive = 15.0
	weightAuthority   = 30.0
)

// HighVisibilityThreshold is the documented lower bound of the "high"
// visibility band.
const HighVisibilityThreshold = 70.0

// positionWeight maps an organic position to its CTR-curve weight.
func positionWeight(position int) float64 {
	switch {
	case position < 1:
		return 0
	case position <= len(ctrWeights):
		return ctrWeights[position-1]
	case position <= 20:
		return tailStart - float64(position-11)*tailStep
	default:
		return deepTailWeight
	}
}

// VisibilityScore computes the 0-100 organic visibility score: the CTR
// weight of the position, plus a boost per owned SERP feature, minus a
// penalty per competitor ranking above. A query where the target does
// not appear scores 0.
func VisibilityScore(pr PositionResult) float64 {
	if pr.Position == nil {
		return 0
	}

	score := 100 * positionWeight(*pr.Position)
	if pr.OwnsFeaturedSnippet {
		score += ownedFeatureBoost
	}
	if pr.OwnsKnowledgePanel {
		score += ownedFeatureBoost
	}
	score -= competitorPenalty * float64(pr.CompetitorsAbove)

	return clamp(score, 0, 100)
}

// CitationLikelihood predicts how likely the target is to be cited by a
// generative answer engine, 0-100, from four weighted factors: position
// strength, SERP feature presence, competitive landscape (fraction of
// competitors beaten), and an externally supplied content-authority
// signal (0-100, e.g. a domain-authority estimate). A non-ranking domain
// with strong authority can still score; the position factor is zero but
// the others contribute.
func CitationLikelihood(pr PositionResult, authority float64) float64 {
	var positionFactor float64
	if pr.Position != nil {
		positionFactor = positionWeight(*pr.Position)
	}

	featureFactor := featureFactor(pr)

	competitiveFactor := 1.0
	if pr.TotalCompetitors > 0 {
		beaten := pr.TotalCompetitors - pr.CompetitorsAbove
		competitiveFactor = float64(beaten) / float64(pr.TotalCompetitors)
	}

	authorityFactor := clamp(authority, 0, 100) / 100

	likelihood := weightPosition*positionFactor +
		weightFeatures*featureFactor +
		weightCompetitive*competitiveFactor +
		weightAuthority*authorityFactor
	return clamp(likelihood, 0, 100)
}

// featureFactor scores SERP feature presence in [0,1]: owned features
// dominate, mere presence of other blocks contributes a little.
func featureFactor(pr PositionResult) float64 {
	var f float64
	if pr.OwnsFeaturedSnippet {
		f += 0.45
	}
	if pr.OwnsKnowledgePanel {
		f += 0.35
	}

	present := 0
	for _, flag := range []bool{
		pr.Features.FeaturedSnippet,
		pr.Features.KnowledgePanel,
		pr.Features.PeopleAlsoAsk,
		pr.Features.LocalPack,
		pr.Features.Shopping,
		pr.Features.Video,
		pr.Features.News,
		pr.Features.Images,
	} {
		if flag {
			present++
		}
	}
	f += 0.05 * float64(present)

	return clamp(f, 0, 1)
}

// RankingRecord is an immutable fact about one analysis run. It is
// recomputed only by re-running analysis, never patched in place.
type RankingRecord struct {
	Query                string         `json:"query"`
	QueryType            string         `json:"query_type"`
	PositionResult       PositionResult `json:"position_result"`
	VisibilityScore      float64        `json:"visibility_score"`
	AICitationLikelihood float64        `json:"ai_citation_likelihood"`
	ComputedAt           time.Time      `json:"computed_at"`
}

// NewRecord computes both scores for a position result and stamps the
// record.
func NewRecord(query, queryType string, pr PositionResult, authority float64) RankingRecord {
	return RankingRecord{
		Query:                query,
		QueryType:            queryType,
		PositionResult:       pr,
		VisibilityScore:      VisibilityScore(pr),
		AICitationLikelihood: CitationLikelihood(pr, authority),
		ComputedAt:           time.Now().UTC(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
