package caption

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	handlePattern       = regexp.MustCompile(`^@[A-Za-z0-9_]{1,30}$`)
	inlineHandlePattern = regexp.MustCompile(`@[A-Za-z0-9_]{1,30}`)
	counterPattern      = regexp.MustCompile(`^[\d.,]+[KkMm]?(\s+(listening|listeners|speakers|requests|likes|people|others))?$`)
	timerPattern        = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// noisePhrases are exact-match UI strings rendered alongside captions
var noisePhrases = map[string]bool{
	"host":                   true,
	"co-host":                true,
	"cohost":                 true,
	"speaker":                true,
	"speakers":               true,
	"listener":               true,
	"listeners":              true,
	"listening":              true,
	"request to speak":       true,
	"request":                true,
	"mute":                   true,
	"unmute":                 true,
	"muted":                  true,
	"leave":                  true,
	"leave quietly":          true,
	"end":                    true,
	"share":                  true,
	"settings":               true,
	"captions":               true,
	"show captions":          true,
	"hide captions":          true,
	"more":                   true,
	"live":                   true,
	"recording":              true,
	"this space is recorded": true,
	"follow":                 true,
	"following":              true,
	"manage space":           true,
	"adjust settings":        true,
	"view all":               true,
	"reactions":              true,
	"turn on notifications":  true,
	"you":                    true,
	"close":                  true,
	"done":                   true,
	"cancel":                 true,
	"ok":                     true,
}

// Normalize trims and collapses whitespace in a raw fragment
func Normalize(raw string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(raw, " "))
}

// IsNoise reports whether text is UI chrome rather than spoken content
func IsNoise(text string) bool {
	lower := strings.ToLower(text)
	if noisePhrases[lower] {
		return true
	}
	if counterPattern.MatchString(text) || timerPattern.MatchString(text) {
		return true
	}
	// Standalone @handles carry no content
	return IsHandle(text)
}

// IsHandle reports whether text is a bare @handle with nothing else
func IsHandle(text string) bool {
	return handlePattern.MatchString(text)
}

// FindHandle returns the first @handle embedded in text, or ""
func FindHandle(text string) string {
	return inlineHandlePattern.FindString(text)
}

// LooksLikeDisplayName reports whether text has the shape of a profile
// display name: a few capitalized words with no sentence punctuation.
func LooksLikeDisplayName(text string) bool {
	if text == "" || len(text) > 50 {
		return false
	}
	if strings.ContainsAny(text, ".,?!;:'\"") {
		return false
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// Kind is the classification of a normalized fragment
type Kind int

const (
	KindEmpty Kind = iota
	KindNoise
	KindHandle
	KindDisplayName
	KindCaption
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNoise:
		return "noise"
	case KindHandle:
		return "handle"
	case KindDisplayName:
		return "display_name"
	default:
		return "caption"
	}
}

// Classify returns the shape-only kind of a normalized fragment.
// Display names are only treated as speaker metadata by the reconciler
// when a handle co-occurs in the same neighborhood.
func Classify(text string) Kind {
	switch {
	case text == "":
		return KindEmpty
	case IsHandle(text):
		return KindHandle
	case IsNoise(text):
		return KindNoise
	case LooksLikeDisplayName(text):
		return KindDisplayName
	default:
		return KindCaption
	}
}
