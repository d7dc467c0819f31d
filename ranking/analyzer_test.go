package ranking

import (
	"testing"

	"github.com/serplens/lens/gateway"
)

func serp(results ...gateway.SerpResult) *gateway.SearchResults {
	return &gateway.SearchResults{Query: "best espresso machine", Results: results}
}

func organic(pos int, url string) gateway.SerpResult {
	return gateway.SerpResult{Position: pos, URL: url, Domain: gateway.DomainOf(url)}
}

func TestAnalyze_TargetPosition(t *testing.T) {
	t.Parallel()
	results := serp(
		organic(1, "https://rival.io/espresso"),
		organic(2, "https://www.example.com/espresso-machines"),
		organic(3, "https://other.net/review"),
		organic(7, "https://example.com/grinders"),
	)

	pr := Analyze(results, "example.com", []string{"rival.io"}, AnalyzeOptions{})

	if pr.Position == nil || *pr.Position != 2 {
		t.Fatalf("Position = %v, want 2", pr.Position)
	}
	if pr.URL != "https://www.example.com/espresso-machines" {
		t.Errorf("URL = %q, want the best-ranking URL", pr.URL)
	}
	if len(pr.MultipleURLs) != 2 {
		t.Fatalf("MultipleURLs = %v, want both target URLs", pr.MultipleURLs)
	}
	if pr.MultipleURLs[0] != "https://www.example.com/espresso-machines" {
		t.Errorf("MultipleURLs[0] = %q, want best first", pr.MultipleURLs[0])
	}
	if pr.IsHomepage {
		t.Error("IsHomepage = true for a deep link, want false")
	}
	if got := pr.CompetitorPositions["rival.io"]; got != 1 {
		t.Errorf("CompetitorPositions[rival.io] = %d, want 1", got)
	}
	if pr.CompetitorsAbove != 1 {
		t.Errorf("CompetitorsAbove = %d, want 1", pr.CompetitorsAbove)
	}
	if pr.TotalCompetitors != 1 {
		t.Errorf("TotalCompetitors = %d, want 1", pr.TotalCompetitors)
	}
}

func TestAnalyze_AdsExcluded(t *testing.T) {
	t.Parallel()
	results := serp(
		gateway.SerpResult{Position: 1, URL: "https://example.com/ad", Domain: "example.com", IsAd: true},
		organic(2, "https://example.com/organic"),
	)

	pr := Analyze(results, "example.com", nil, AnalyzeOptions{})
	if pr.Position == nil || *pr.Position != 2 {
		t.Fatalf("Position = %v, want 2 (paid placements never count)", pr.Position)
	}
	if len(pr.MultipleURLs) != 1 {
		t.Errorf("MultipleURLs = %v, want the organic URL only", pr.MultipleURLs)
	}
}

func TestAnalyze_Subdomains(t *testing.T) {
	t.Parallel()
	results := serp(organic(4, "https://blog.example.com/post"))

	strict := Analyze(results, "example.com", nil, AnalyzeOptions{})
	if strict.Position != nil {
		t.Fatalf("Position = %d without subdomain matching, want absent", *strict.Position)
	}

	loose := Analyze(results, "example.com", nil, AnalyzeOptions{IncludeSubdomains: true})
	if loose.Position == nil || *loose.Position != 4 {
		t.Fatalf("Position = %v with subdomain matching, want 4", loose.Position)
	}
}

func TestAnalyze_AbsentTarget(t *testing.T) {
	t.Parallel()
	results := serp(
		organic(1, "https://rival.io/"),
		organic(2, "https://other.net/page"),
	)

	pr := Analyze(results, "example.com", []string{"rival.io", "other.net", "ghost.dev"}, AnalyzeOptions{})
	if pr.Position != nil {
		t.Fatalf("Position = %d, want nil for an absent target", *pr.Position)
	}
	// every ranked competitor counts as above an absent target
	if pr.CompetitorsAbove != 2 {
		t.Errorf("CompetitorsAbove = %d, want 2", pr.CompetitorsAbove)
	}
	if pr.TotalCompetitors != 3 {
		t.Errorf("TotalCompetitors = %d, want 3", pr.TotalCompetitors)
	}
	if _, seen := pr.CompetitorPositions["ghost.dev"]; seen {
		t.Error("CompetitorPositions contains a domain that never ranked")
	}
}

func TestAnalyze_FeatureOwnership(t *testing.T) {
	t.Parallel()
	results := serp(organic(3, "https://example.com/guide"))
	results.Features = gateway.SerpFeatures{
		FeaturedSnippet:      true,
		FeaturedSnippetURL:   "https://www.example.com/guide",
		KnowledgePanel:       true,
		KnowledgePanelDomain: "rival.io",
		PeopleAlsoAsk:        true,
	}

	pr := Analyze(results, "example.com", nil, AnalyzeOptions{})
	if !pr.OwnsFeaturedSnippet {
		t.Error("OwnsFeaturedSnippet = false, want snippet attributed to the target")
	}
	if pr.OwnsKnowledgePanel {
		t.Error("OwnsKnowledgePanel = true, want the panel attributed to the rival")
	}
	if !pr.Features.PeopleAlsoAsk {
		t.Error("Features not carried through from the response")
	}
}

func TestAnalyze_HomepageDetection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"https://example.com/", true},
		{"https://example.com/pricing", false},
		{"https://example.com/?utm_source=x", false},
	}
	for _, tt := range tests {
		pr := Analyze(serp(organic(1, tt.url)), "example.com", nil, AnalyzeOptions{})
		if pr.IsHomepage != tt.want {
			t.Errorf("IsHomepage for %q = %v, want %v", tt.url, pr.IsHomepage, tt.want)
		}
	}
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Example.com", "example.com"},
		{"https://www.Example.com", "example.com"},
		{"www.example.com/", "example.com"},
		{"  example.com  ", "example.com"},
	}
	for _, tt := range tests {
		if got := normalizeDomain(tt.in); got != tt.want {
			t.Errorf("normalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
