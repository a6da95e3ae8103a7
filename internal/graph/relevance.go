package graph

import (
	"regexp"
	"strings"

	"github.com/ppiankov/veracast/internal/model"
)

// Relevance weights
const (
	keywordPoints  = 10.0
	verifiedBonus  = 5.0
	spamPenalty    = 10.0
	maxHashtags    = 3
	minCorroborate = 2 // Fewer matched keywords halves the keyword score
)

var (
	hashtagPattern = regexp.MustCompile(`(^|\s)#\w+`)
	promoPattern   = regexp.MustCompile(`(?i)\b(buy now|giveaway|click here|link in bio|promo code|discount|dm me|follow me|follow back|use code|limited offer|free shipping|airdrop)\b`)
)

type tier struct {
	min   int
	bonus float64
}

var (
	followerTiers   = []tier{{1_000_000, 6}, {100_000, 4}, {10_000, 2}, {1_000, 1}}
	engagementTiers = []tier{{10_000, 6}, {1_000, 4}, {100, 2}, {10, 1}}
)

func tierBonus(v int, tiers []tier) float64 {
	for _, t := range tiers {
		if v >= t.min {
			return t.bonus
		}
	}
	return 0
}

// MatchedKeywords counts how many keywords occur in text as whole words
func MatchedKeywords(text string, keywords []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && containsWord(lower, k) {
			n++
		}
	}
	return n
}

func containsWord(lower, word string) bool {
	for from := 0; from < len(lower); {
		idx := strings.Index(lower[from:], word)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(word)
		if (start == 0 || !isWordByte(lower[start-1])) && (end == len(lower) || !isWordByte(lower[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// Relevance scores a candidate post against the claim keywords. A post that
// matches no keyword is irrelevant regardless of its reach.
func Relevance(p model.Post, keywords []string) float64 {
	matched := MatchedKeywords(p.Text, keywords)
	if matched == 0 {
		return 0
	}

	score := keywordPoints * float64(matched)
	if matched < minCorroborate {
		score /= 2
	}
	if p.Verified {
		score += verifiedBonus
	}
	score += tierBonus(p.Followers, followerTiers)
	score += tierBonus(p.Engagement(), engagementTiers)

	if len(hashtagPattern.FindAllString(p.Text, -1)) > maxHashtags {
		score -= spamPenalty
	}
	if promoPattern.MatchString(p.Text) {
		score -= spamPenalty
	}
	return score
}

// FilterRelevant keeps posts scoring at least strict. Only when none qualify
// is the relaxed threshold applied. Returns the survivors and whether the
// relaxed threshold was used.
func FilterRelevant(posts []model.Post, keywords []string, strict, relaxed float64) ([]model.Post, bool) {
	scores := make([]float64, len(posts))
	for i, p := range posts {
		scores[i] = Relevance(p, keywords)
	}

	keep := func(threshold float64) []model.Post {
		var out []model.Post
		for i, p := range posts {
			if scores[i] > 0 && scores[i] >= threshold {
				out = append(out, p)
			}
		}
		return out
	}

	if out := keep(strict); len(out) > 0 {
		return out, false
	}
	if out := keep(relaxed); len(out) > 0 {
		return out, true
	}
	return nil, false
}
