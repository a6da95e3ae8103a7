package caption

import "github.com/ppiankov/veracast/internal/model"

// Source records which heuristic produced a speaker handle
type Source string

const (
	SourceImmediate    Source = "immediate"
	SourceAncestor     Source = "ancestor"
	SourceSibling      Source = "sibling"
	SourceContinuation Source = "continuation"
	SourceUnknown      Source = "unknown"
)

// Resolver applies the speaker heuristics in priority order and
// remembers the last definitive handle for caption continuations.
type Resolver struct {
	last        string
	lastDisplay string
}

// Resolve returns the speaker handle and display name for an attribution
func (r *Resolver) Resolve(a Attribution) (handle, displayName string, src Source) {
	switch {
	case a.Immediate != "":
		handle, src = a.Immediate, SourceImmediate
	case a.Ancestor != "":
		handle, src = a.Ancestor, SourceAncestor
	case a.Sibling != "":
		handle, src = a.Sibling, SourceSibling
	case r.last != "":
		return r.last, r.lastDisplay, SourceContinuation
	default:
		return model.UnknownSpeaker, "", SourceUnknown
	}

	if handle != r.last {
		r.lastDisplay = ""
	}
	r.last = handle
	if a.DisplayName != "" {
		r.lastDisplay = a.DisplayName
	}
	return handle, r.lastDisplay, src
}

// Last returns the last definitively resolved handle, or ""
func (r *Resolver) Last() string {
	return r.last
}
