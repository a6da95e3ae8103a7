// Package extract pulls checkable claims and search keywords out of spoken text.
package extract

import (
	"regexp"
	"strings"
)

// Claim is a candidate factual statement found in an utterance
type Claim struct {
	Text      string `json:"text"`
	Heuristic string `json:"heuristic"` // Which marker matched
	Sentence  int    `json:"sentence"`  // Sentence index within the utterance
}

// ClaimExtractor finds sentences that carry factual markers
type ClaimExtractor struct {
	markers []string
}

var numberPattern = regexp.MustCompile(`\b\d[\d,.]*\b`)

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{
		markers: []string{
			"according to", "percent", "million", "billion", "trillion",
			"record", "highest", "lowest", "doubled", "tripled", "increased",
			"decreased", "went up", "went down", "rose", "fell", "more than",
			"less than", "never", "always", "every", "study", "report",
			"data", "statistics", "law", "illegal", "voted", "signed",
		},
	}
}

// Extract returns claim candidates from spoken text, deduplicated
func (e *ClaimExtractor) Extract(text string) []Claim {
	var claims []Claim
	for i, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		if numberPattern.MatchString(sentence) {
			claims = append(claims, Claim{Text: sentence, Heuristic: "number", Sentence: i})
			continue
		}
		for _, marker := range e.markers {
			if containsPhrase(lower, marker) {
				claims = append(claims, Claim{Text: sentence, Heuristic: "marker:" + marker, Sentence: i})
				break // Only match once per sentence
			}
		}
	}
	return dedupeClaims(claims)
}

func containsPhrase(lower, phrase string) bool {
	idx := strings.Index(lower, phrase)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(lower[idx-1])
		end := idx + len(phrase)
		after := end == len(lower) || !isWordByte(lower[end])
		if before && after {
			return true
		}
		next := strings.Index(lower[idx+1:], phrase)
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// splitSentences splits text into sentences (simple heuristic)
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if len(sentence) >= 12 && len(sentence) <= 500 {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on decimals and abbreviations
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\t' {
				flush()
			}
		}
	}
	if current.Len() > 0 {
		flush()
	}

	return sentences
}

// dedupeClaims removes duplicate claims
func dedupeClaims(claims []Claim) []Claim {
	seen := make(map[string]bool)
	var unique []Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
