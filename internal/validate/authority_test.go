package validate

import (
	"testing"

	"github.com/ppiankov/veracast/internal/model"
)

func TestAuthorityClassifier_Classify(t *testing.T) {
	classifier := NewAuthorityClassifier(&model.AuthorityConfig{
		PrimaryDomains:   []string{"census.gov", "gov.uk", "who.int"},
		SecondaryDomains: []string{"reuters.com", "politifact.com"},
		DomainMap:        map[string]string{"ourworldindata.org": "secondary", "blog.census.gov": "tertiary"},
		PathPatterns:     []model.PathPattern{{Pattern: "^/statistics/", Tier: "primary"}, {Pattern: "(", Tier: "primary"}},
	})

	tests := []struct {
		url      string
		expected model.AuthorityTier
	}{
		{"https://www.census.gov/data/tables", model.TierPrimary},
		{"https://www.ons.gov.uk/economy", model.TierPrimary},
		{"https://WHO.int/news", model.TierPrimary},
		{"https://www.reuters.com/world/", model.TierSecondary},
		{"https://www.politifact.com/factchecks/", model.TierSecondary},
		{"https://ourworldindata.org/grapher/x", model.TierSecondary},
		{"https://blog.census.gov/post", model.TierTertiary},
		{"https://example.com/statistics/2024", model.TierPrimary},
		{"https://bls.gov:443/cpi", model.TierPrimary},
		{"https://mit.edu/research", model.TierPrimary},
		{"https://ox.ac.uk/news", model.TierPrimary},
		{"https://notreuters.com/story", model.TierTertiary},
		{"https://someblog.example/post", model.TierTertiary},
		{"::not a url", model.TierTertiary},
		{"/relative/path", model.TierTertiary},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("Expected %v for %s, got %v", tt.expected, tt.url, got)
			}
		})
	}
}

func TestNewAuthorityClassifier_NilConfig(t *testing.T) {
	classifier := NewAuthorityClassifier(nil)
	if got := classifier.Classify("https://apnews.com/article/1"); got != model.TierSecondary {
		t.Errorf("Expected default secondary domains, got %v", got)
	}
}

func TestParseTier(t *testing.T) {
	tests := map[string]model.AuthorityTier{
		"primary":   model.TierPrimary,
		"1":         model.TierPrimary,
		"Secondary": model.TierSecondary,
		"2":         model.TierSecondary,
		"tertiary":  model.TierTertiary,
		"bogus":     model.TierTertiary,
	}
	for in, want := range tests {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %v, want %v", in, got, want)
		}
	}
}
