// Package ranking turns raw SERP responses into normalized position
// results, a 0-100 visibility score, and an AI-citation-likelihood
// prediction for a target domain.
package ranking

import (
	"net/url"
	"strings"

	"github.com/serplens/lens/gateway"
)

// AnalyzeOptions configures position detection.
type AnalyzeOptions struct {
	// IncludeSubdomains also matches hosts under the target domain,
	// e.g. blog.example.com for target example.com.
	IncludeSubdomains bool
}

// PositionResult is the domain-specific roll-up for one query.
type PositionResult struct {
	// Position is the best organic rank of the target domain, nil when
	// the domain does not appear.
	Position *int `json:"position"`

	// URL is the target's best-ranking URL.
	URL string `json:"url,omitempty"`

	// IsHomepage reports whether the best-ranking URL is the site root.
	IsHomepage bool `json:"is_homepage"`

	// MultipleURLs lists every target URL on the page, best first.
	MultipleURLs []string `json:"multiple_urls,omitempty"`

	// Features are the page's SERP features.
	Features gateway.SerpFeatures `json:"features"`

	// OwnsFeaturedSnippet and OwnsKnowledgePanel attribute ownership of
	// those features to the target domain.
	OwnsFeaturedSnippet bool `json:"owns_featured_snippet"`
	OwnsKnowledgePanel  bool `json:"owns_knowledge_panel"`

	// CompetitorPositions maps each competitor domain that appears to
	// its best organic position.
	CompetitorPositions map[string]int `json:"competitor_positions,omitempty"`

	// CompetitorsAbove counts competitor domains ranking above the
	// target (all ranked competitors when the target is absent).
	CompetitorsAbove int `json:"competitors_above"`

	// TotalCompetitors is how many competitor domains were checked.
	TotalCompetitors int `json:"total_competitors"`
}

// Analyze scans the ranked entries for the target domain and its
// competitors. Every matching URL is recorded, not just the first; ads
// are excluded from position detection.
func Analyze(results *gateway.SearchResults, targetDomain string, competitors []string, opts AnalyzeOptions) PositionResult {
	target := normalizeDomain(targetDomain)
	pr := PositionResult{
		CompetitorPositions: make(map[string]int),
		TotalCompetitors:    len(competitors),
	}
	if results == nil {
		return pr
	}
	pr.Features = results.Features

	for _, r := range results.Results {
		if r.IsAd {
			continue
		}
		domain := r.Domain
		if domain == "" {
			domain = gateway.DomainOf(r.URL)
		}

		if domainMatches(domain, target, opts.IncludeSubdomains) {
			if pr.Position == nil {
				pos := r.Position
				pr.Position = &pos
				pr.URL = r.URL
				pr.IsHomepage = isHomepage(r.URL)
			}
			pr.MultipleURLs = append(pr.MultipleURLs, r.URL)
			continue
		}

		for _, c := range competitors {
			comp := normalizeDomain(c)
			if !domainMatches(domain, comp, opts.IncludeSubdomains) {
				continue
			}
			if best, seen := pr.CompetitorPositions[comp]; !seen || r.Position < best {
				pr.CompetitorPositions[comp] = r.Position
			}
		}
	}

	for _, best := range pr.CompetitorPositions {
		if pr.Position == nil || best < *pr.Position {
			pr.CompetitorsAbove++
		}
	}

	if results.Features.FeaturedSnippet {
		snippetDomain := gateway.DomainOf(results.Features.FeaturedSnippetURL)
		pr.OwnsFeaturedSnippet = domainMatches(snippetDomain, target, opts.IncludeSubdomains)
	}
	if results.Features.KnowledgePanel {
		pr.OwnsKnowledgePanel = domainMatches(normalizeDomain(results.Features.KnowledgePanelDomain), target, opts.IncludeSubdomains)
	}
	return pr
}

// normalizeDomain lowercases and strips scheme and "www." so config
// values like "https://www.Example.com" match response domains.
func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if strings.Contains(d, "//") {
		d = gateway.DomainOf(d)
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, "/")
}

// domainMatches reports whether domain is the target or, optionally, a
// subdomain of it.
func domainMatches(domain, target string, includeSubdomains bool) bool {
	if target == "" || domain == "" {
		return false
	}
	if domain == target {
		return true
	}
	return includeSubdomains && strings.HasSuffix(domain, "."+target)
}

// isHomepage reports whether a URL points at the site root.
func isHomepage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery == ""
}
