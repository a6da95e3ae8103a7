package caption

// Attribution is what a classifier can tell about a fragment's DOM neighborhood.
// Each field is a handle found at a given scope, or "" when none was found.
type Attribution struct {
	Immediate   string // Handle in the immediate containing element
	Ancestor    string // Handle in a wider ancestor scope
	Sibling     string // Handle in a prior sibling container, scanned backward
	DisplayName string // Display name near the fragment, if any
	SpeakerMeta bool   // The fragment itself sits in a speaker-identity element
}

// HandleNearby reports whether a handle co-occurs in the fragment's neighborhood
func (a Attribution) HandleNearby() bool {
	return a.Immediate != "" || a.Ancestor != ""
}

// Classifier inspects a rendering-surface context for speaker attribution.
// Implementations must not panic on malformed contexts; they return an error instead.
type Classifier interface {
	// Name returns the classifier name
	Name() string

	// CanHandle checks if this classifier understands the given context
	CanHandle(domCtx any) bool

	// Attribute inspects the neighborhood of fragment
	Attribute(fragment string, domCtx any) (Attribution, error)
}

// Registry selects a classifier for each context
type Registry struct {
	classifiers []Classifier
	generic     Classifier
}

// NewRegistry creates a registry with the DOM and static classifiers
func NewRegistry() *Registry {
	registry := &Registry{
		classifiers: make([]Classifier, 0),
	}

	registry.Register(NewDOMClassifier())
	registry.Register(StaticClassifier{})

	// Contexts nobody understands are treated as continuations
	registry.generic = continuationClassifier{}

	return registry
}

// Register registers a new classifier; later registrations are tried last
func (r *Registry) Register(c Classifier) {
	r.classifiers = append(r.classifiers, c)
}

// Find returns the first classifier that can handle the context
func (r *Registry) Find(domCtx any) Classifier {
	for _, c := range r.classifiers {
		if c.CanHandle(domCtx) {
			return c
		}
	}
	return r.generic
}

// StaticContext is a deterministic, pre-resolved neighborhood used by
// replays and tests in place of a live DOM.
type StaticContext struct {
	Immediate   string   `json:"immediate,omitempty"`
	Ancestor    string   `json:"ancestor,omitempty"`
	Siblings    []string `json:"siblings,omitempty"` // Nearest first
	DisplayName string   `json:"display_name,omitempty"`
	SpeakerMeta bool     `json:"speaker_meta,omitempty"`
}

// StaticClassifier reads attribution straight from a StaticContext
type StaticClassifier struct{}

// Name returns the classifier name
func (StaticClassifier) Name() string { return "static" }

// CanHandle accepts StaticContext values and pointers
func (StaticClassifier) CanHandle(domCtx any) bool {
	switch domCtx.(type) {
	case StaticContext, *StaticContext:
		return true
	}
	return false
}

// Attribute copies the context, validating handle shapes
func (StaticClassifier) Attribute(fragment string, domCtx any) (Attribution, error) {
	var sc StaticContext
	switch v := domCtx.(type) {
	case StaticContext:
		sc = v
	case *StaticContext:
		if v == nil {
			return Attribution{}, errMalformedContext
		}
		sc = *v
	default:
		return Attribution{}, errMalformedContext
	}

	a := Attribution{
		Immediate:   handleOrEmpty(sc.Immediate),
		Ancestor:    handleOrEmpty(sc.Ancestor),
		DisplayName: sc.DisplayName,
		SpeakerMeta: sc.SpeakerMeta,
	}
	for _, s := range sc.Siblings {
		if h := handleOrEmpty(s); h != "" {
			a.Sibling = h
			break
		}
	}
	return a, nil
}

type continuationClassifier struct{}

func (continuationClassifier) Name() string { return "continuation" }

func (continuationClassifier) CanHandle(any) bool { return true }

func (continuationClassifier) Attribute(string, any) (Attribution, error) {
	return Attribution{}, nil
}

// handleOrEmpty accepts "@name" or a bare "name" and returns "@name"
func handleOrEmpty(s string) string {
	s = Normalize(s)
	if s == "" || s == "@" {
		return ""
	}
	if s[0] != '@' {
		s = "@" + s
	}
	if !IsHandle(s) {
		return ""
	}
	return s
}
