package model

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Government, academic, official statistics
	TierSecondary AuthorityTier = 2 // Wire services, major publishers, fact-checkers
	TierTertiary  AuthorityTier = 3 // Blogs, personal sites, social posts
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// LinkCheck is the outcome of vetting one externally supplied source URL
type LinkCheck struct {
	URL         string        `json:"url"`
	Valid       bool          `json:"valid"` // 2xx/3xx within the timeout
	StatusCode  int           `json:"status_code,omitempty"`
	RedirectURL string        `json:"redirect_url,omitempty"` // If redirected
	Authority   AuthorityTier `json:"authority"`
	Disallowed  bool          `json:"disallowed,omitempty"` // Blocked by robots.txt
	Error       string        `json:"error,omitempty"`
}
