package gateway

import "time"

// SerpResult is one raw per-URL entry from a provider response.
type SerpResult struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	IsAd     bool   `json:"is_ad"`
}

// SerpFeatures flags the non-organic blocks present on the results page.
// The featured snippet and knowledge panel carry their owner so the
// analyzer can attribute them to the target domain.
type SerpFeatures struct {
	FeaturedSnippet      bool   `json:"featured_snippet"`
	FeaturedSnippetURL   string `json:"featured_snippet_url,omitempty"`
	KnowledgePanel       bool   `json:"knowledge_panel"`
	KnowledgePanelDomain string `json:"knowledge_panel_domain,omitempty"`
	PeopleAlsoAsk        bool   `json:"people_also_ask"`
	LocalPack            bool   `json:"local_pack"`
	Shopping             bool   `json:"shopping"`
	Video                bool   `json:"video"`
	News                 bool   `json:"news"`
	Images               bool   `json:"images"`
}

// SearchResults is the normalized outcome of one search.
type SearchResults struct {
	Query        string         `json:"query"`
	Results      []SerpResult   `json:"results"`
	Features     SerpFeatures   `json:"features"`
	TotalResults int64          `json:"total_results"`
	SearchTime   time.Duration  `json:"search_time"`
	Cached       bool           `json:"cached"`
	Provider     string         `json:"provider"`
	Cost         float64        `json:"cost"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
