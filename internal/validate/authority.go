package validate

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/veracast/internal/model"
)

// AuthorityClassifier assigns source URLs to authority tiers
type AuthorityClassifier struct {
	domainMap map[string]model.AuthorityTier
	primary   []string
	secondary []string
	paths     []pathRule
}

type pathRule struct {
	re   *regexp.Regexp
	tier model.AuthorityTier
}

// NewAuthorityClassifier creates a classifier; nil config uses the defaults
func NewAuthorityClassifier(config *model.AuthorityConfig) *AuthorityClassifier {
	if config == nil {
		config = &model.DefaultConfig().Authority
	}

	a := &AuthorityClassifier{
		domainMap: make(map[string]model.AuthorityTier, len(config.DomainMap)),
		primary:   normalizeDomains(config.PrimaryDomains),
		secondary: normalizeDomains(config.SecondaryDomains),
	}
	for host, tier := range config.DomainMap {
		a.domainMap[strings.ToLower(host)] = ParseTier(tier)
	}
	for _, p := range config.PathPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		a.paths = append(a.paths, pathRule{re: re, tier: ParseTier(p.Tier)})
	}
	return a
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Classify returns the tier of rawURL. Unparseable URLs are tertiary.
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierTertiary
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	if tier, ok := a.domainMap[host]; ok {
		return tier
	}
	if underAny(host, a.primary) {
		return model.TierPrimary
	}
	if underAny(host, a.secondary) {
		return model.TierSecondary
	}
	for _, p := range a.paths {
		if p.re.MatchString(parsed.Path) {
			return p.tier
		}
	}
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.TierPrimary
	}
	return model.TierTertiary
}

// underAny reports whether host equals or is a subdomain of one of domains
func underAny(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ParseTier converts a tier name or number
func ParseTier(tier string) model.AuthorityTier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}
