package caption

// SeenSet is a bounded FIFO membership set for fragments already processed.
// When an insertion pushes it past the cap, the oldest share of entries is evicted.
type SeenSet struct {
	limit         int
	evictFraction float64
	order         []string
	members       map[string]struct{}
	evictions     int
}

// NewSeenSet creates a seen-set; limit <= 0 defaults to 1000, fraction <= 0 to 0.2
func NewSeenSet(limit int, evictFraction float64) *SeenSet {
	if limit <= 0 {
		limit = 1000
	}
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = 0.2
	}
	return &SeenSet{
		limit:         limit,
		evictFraction: evictFraction,
		order:         make([]string, 0, limit+1),
		members:       make(map[string]struct{}, limit+1),
	}
}

// Contains reports whether text has been seen
func (s *SeenSet) Contains(text string) bool {
	_, ok := s.members[text]
	return ok
}

// Add records text; returns false if it was already present
func (s *SeenSet) Add(text string) bool {
	if s.Contains(text) {
		return false
	}
	s.members[text] = struct{}{}
	s.order = append(s.order, text)
	if len(s.order) > s.limit {
		s.evict()
	}
	return true
}

func (s *SeenSet) evict() {
	n := int(float64(s.limit) * s.evictFraction)
	if n < 1 {
		n = 1
	}
	if n > len(s.order) {
		n = len(s.order)
	}
	for _, old := range s.order[:n] {
		delete(s.members, old)
	}
	// Copy so the backing array does not pin evicted strings
	remaining := make([]string, len(s.order)-n, s.limit+1)
	copy(remaining, s.order[n:])
	s.order = remaining
	s.evictions++
}

// Len returns the number of remembered fragments
func (s *SeenSet) Len() int {
	return len(s.order)
}

// Cap returns the configured cap
func (s *SeenSet) Cap() int {
	return s.limit
}

// Evictions returns how many eviction batches have run
func (s *SeenSet) Evictions() int {
	return s.evictions
}
