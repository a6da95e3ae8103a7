package model

// Stance is a node's inferred relationship to a claim
type Stance string

const (
	StanceSupports    Stance = "supports"
	StanceContradicts Stance = "contradicts"
	StanceNeutral     Stance = "neutral"
)

// ClusterIndex returns the stance bucket used for layout anchors
func (s Stance) ClusterIndex() int {
	switch s {
	case StanceSupports:
		return 0
	case StanceContradicts:
		return 1
	default:
		return 2
	}
}

// EdgeType classifies a propagation edge
type EdgeType string

const (
	EdgeReply   EdgeType = "reply"
	EdgeQuote   EdgeType = "quote"
	EdgeRetweet EdgeType = "retweet"
	EdgeRelated EdgeType = "related" // Synthetic, inferred connection
)

// IsConcrete reports whether the edge models a real interaction
func (t EdgeType) IsConcrete() bool {
	return t == EdgeReply || t == EdgeQuote || t == EdgeRetweet
}

// PostKind describes how a post relates to another post
type PostKind string

const (
	PostOriginal PostKind = "original"
	PostReply    PostKind = "reply"
	PostQuote    PostKind = "quote"
	PostRetweet  PostKind = "retweet"
)

// Position holds ephemeral layout state; never cached or persisted
type Position struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// PropagationNode is one post in a claim graph
type PropagationNode struct {
	ID           string    `json:"id"` // External post identifier, stable across merges
	DisplayName  string    `json:"display_name"`
	Handle       string    `json:"handle"`
	Impressions  int       `json:"impressions"`
	Followers    int       `json:"followers"`
	Verified     bool      `json:"verified"`
	Text         string    `json:"text"`
	URL          string    `json:"url,omitempty"`
	Kind         PostKind  `json:"kind,omitempty"`
	ReferencedID string    `json:"referenced_id,omitempty"` // Original post for replies/quotes/retweets
	Stance       Stance    `json:"stance"`
	ClusterIndex int       `json:"cluster_index"` // 0 supports, 1 contradicts, 2 neutral
	Cluster      int       `json:"cluster"`       // Visual sub-cluster (3-5 total)
	IsHub        bool      `json:"is_hub"`
	Position     *Position `json:"position,omitempty"` // Ephemeral
}

// PropagationEdge connects two nodes by id
type PropagationEdge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}

// Statistics are always recomputed from the node set
type Statistics struct {
	TotalImpressions int `json:"total_impressions"`
	Supporters       int `json:"supporters"`
	Contradictors    int `json:"contradictors"`
	Neutral          int `json:"neutral"`
}

// ClaimGraph models the social propagation of a claim
type ClaimGraph struct {
	ClaimSummary string            `json:"claim_summary"`
	Topic        string            `json:"topic,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Nodes        []PropagationNode `json:"nodes"`
	Edges        []PropagationEdge `json:"edges"`
	Statistics   Statistics        `json:"statistics"`
	Expansions   int               `json:"expansions"`       // Number of successful expand merges
	Source       string            `json:"source,omitempty"` // "search" or "generated"
}

// NodeIndex returns a map from node id to slice index
func (g *ClaimGraph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Clone returns a deep copy of the graph
func (g *ClaimGraph) Clone() *ClaimGraph {
	if g == nil {
		return nil
	}
	out := *g
	out.Keywords = append([]string(nil), g.Keywords...)
	out.Nodes = make([]PropagationNode, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.Position != nil {
			p := *n.Position
			n.Position = &p
		}
		out.Nodes[i] = n
	}
	out.Edges = append([]PropagationEdge(nil), g.Edges...)
	return &out
}

// Post is a candidate post returned by a search or generative collaborator
type Post struct {
	ID           string   `json:"id"`
	AuthorName   string   `json:"author_name"`
	AuthorHandle string   `json:"author_handle"`
	Followers    int      `json:"followers"`
	Verified     bool     `json:"verified"`
	Text         string   `json:"text"`
	URL          string   `json:"url,omitempty"`
	Impressions  int      `json:"impressions"`
	Likes        int      `json:"likes"`
	Reposts      int      `json:"reposts"`
	Replies      int      `json:"replies"`
	Kind         PostKind `json:"kind,omitempty"`
	ReferencedID string   `json:"referenced_id,omitempty"`
}

// Engagement returns the summed interaction count of the post
func (p Post) Engagement() int {
	return p.Likes + p.Reposts + p.Replies
}
