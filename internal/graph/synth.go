package graph

import (
	"math/rand"
	"sort"

	"github.com/ppiankov/veracast/internal/model"
)

// SynthOptions tunes connection synthesis
type SynthOptions struct {
	MaxClusters       int // Visual clusters, clamped to 3..5
	HubBand           int // Members wired straight to the hub
	ChainBand         int // Members wired to a first-level node
	ExtraRelatedEdges int // Extra intra-cluster related edges per cluster
	BridgeEdges       int // Inter-cluster edges between cluster hubs
}

// DefaultSynthOptions returns the standard synthesis shape
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		MaxClusters:       5,
		HubBand:           3,
		ChainBand:         3,
		ExtraRelatedEdges: 2,
		BridgeEdges:       3,
	}
}

// NodesFromPosts converts candidate posts to nodes, dropping repeated ids
// and returning each node's engagement for stance weighting
func NodesFromPosts(posts []model.Post) ([]model.PropagationNode, map[string]int) {
	seen := make(map[string]bool, len(posts))
	engagement := make(map[string]int, len(posts))
	nodes := make([]model.PropagationNode, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		kind := p.Kind
		if kind == "" {
			kind = model.PostOriginal
		}
		impressions := p.Impressions
		if impressions < 0 {
			impressions = 0
		}
		followers := p.Followers
		if followers < 0 {
			followers = 0
		}
		nodes = append(nodes, model.PropagationNode{
			ID:           p.ID,
			DisplayName:  p.AuthorName,
			Handle:       p.AuthorHandle,
			Impressions:  impressions,
			Followers:    followers,
			Verified:     p.Verified,
			Text:         p.Text,
			URL:          p.URL,
			Kind:         kind,
			ReferencedID: p.ReferencedID,
		})
		engagement[p.ID] = p.Engagement()
	}
	return nodes, engagement
}

// edgeSet tracks connected pairs regardless of direction
type edgeSet struct {
	edges []model.PropagationEdge
	pairs map[[2]string]bool
	deg   map[string]int
}

func newEdgeSet() *edgeSet {
	return &edgeSet{pairs: make(map[[2]string]bool), deg: make(map[string]int)}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *edgeSet) add(source, target string, t model.EdgeType) bool {
	if source == target || s.pairs[pairKey(source, target)] {
		return false
	}
	s.pairs[pairKey(source, target)] = true
	s.edges = append(s.edges, model.PropagationEdge{Source: source, Target: target, Type: t})
	s.deg[source]++
	s.deg[target]++
	return true
}

func (s *edgeSet) has(a, b string) bool { return s.pairs[pairKey(a, b)] }

// Synthesize assigns stances, visual clusters and hubs to nodes and wires a
// connected edge set: concrete references first, then per-cluster hub,
// chain and related bands, extra intra-cluster edges, inter-cluster bridges
// and a final repair pass so no node is left isolated.
func Synthesize(nodes []model.PropagationNode, engagement map[string]int, rng *rand.Rand, opts SynthOptions) ([]model.PropagationNode, []model.PropagationEdge) {
	if len(nodes) == 0 {
		return nodes, nil
	}
	AssignStances(nodes, engagement, rng)
	clusters := assignClusters(nodes, opts.MaxClusters)

	es := newEdgeSet()
	idx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		idx[n.ID] = i
	}

	// Real interactions present in the data
	for _, n := range nodes {
		if n.ReferencedID == "" || n.Kind == model.PostOriginal {
			continue
		}
		if _, ok := idx[n.ReferencedID]; ok {
			es.add(n.ID, n.ReferencedID, edgeTypeFor(n.Kind, rng))
		}
	}

	hubs := make([]string, len(clusters))
	for c, members := range clusters {
		hub := members[0]
		nodes[hub].IsHub = true
		hubs[c] = nodes[hub].ID

		firstLevel := []int{}
		for pos := 1; pos < len(members); pos++ {
			m := members[pos]
			switch {
			case pos <= opts.HubBand:
				es.add(nodes[m].ID, nodes[hub].ID, edgeTypeFor(nodes[m].Kind, rng))
				firstLevel = append(firstLevel, m)
			case pos <= opts.HubBand+opts.ChainBand && len(firstLevel) > 0:
				parent := firstLevel[rng.Intn(len(firstLevel))]
				es.add(nodes[m].ID, nodes[parent].ID, model.EdgeReply)
			default:
				parent := members[rng.Intn(pos)]
				es.add(nodes[m].ID, nodes[parent].ID, model.EdgeRelated)
			}
		}

		if len(members) >= 4 {
			for k, tries := 0, 0; k < opts.ExtraRelatedEdges && tries < 10*opts.ExtraRelatedEdges; tries++ {
				a := members[rng.Intn(len(members))]
				b := members[rng.Intn(len(members))]
				if es.add(nodes[a].ID, nodes[b].ID, model.EdgeRelated) {
					k++
				}
			}
		}
	}

	// Bridges between cluster hubs, strongest hubs first
	order := make([]int, len(hubs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return nodes[idx[hubs[order[a]]]].Impressions > nodes[idx[hubs[order[b]]]].Impressions
	})
	for k := 1; k < len(order) && k <= opts.BridgeEdges; k++ {
		es.add(hubs[order[k]], hubs[order[k-1]], model.EdgeRelated)
	}

	repair(nodes, clusters, es)
	return nodes, es.edges
}

// assignClusters splits the three stance buckets into 3..max visual
// clusters and returns member indices per cluster, highest impressions first
func assignClusters(nodes []model.PropagationNode, max int) [][]int {
	if max < 3 {
		max = 3
	}
	if max > 5 {
		max = 5
	}

	var buckets [3][]int
	for i, n := range nodes {
		b := n.ClusterIndex
		buckets[b] = append(buckets[b], i)
	}
	for b := range buckets {
		members := buckets[b]
		sort.SliceStable(members, func(i, j int) bool {
			ni, nj := nodes[members[i]], nodes[members[j]]
			if ni.Impressions != nj.Impressions {
				return ni.Impressions > nj.Impressions
			}
			return ni.ID < nj.ID
		})
	}

	// One cluster per non-empty bucket, then split the most crowded bucket
	// until the target count is reached
	target := (len(nodes) + 7) / 8
	if target < 3 {
		target = 3
	}
	if target > max {
		target = max
	}
	var splits [3]int
	total := 0
	for b := range buckets {
		if len(buckets[b]) > 0 {
			splits[b] = 1
			total++
		}
	}
	for total < target {
		best, bestSize := -1, 1
		for b := range buckets {
			if splits[b] == 0 {
				continue
			}
			size := len(buckets[b]) / splits[b]
			if size > bestSize || (size == bestSize && best >= 0 && len(buckets[b]) > len(buckets[best])) {
				best, bestSize = b, size
			}
		}
		if best < 0 {
			break // Every cluster is a single node
		}
		splits[best]++
		total++
	}

	var clusters [][]int
	for b := range buckets {
		if splits[b] == 0 {
			continue
		}
		base := len(clusters)
		for s := 0; s < splits[b]; s++ {
			clusters = append(clusters, nil)
		}
		// Deal round-robin so each sub-cluster gets a strong hub
		for pos, m := range buckets[b] {
			c := base + pos%splits[b]
			nodes[m].Cluster = c
			clusters[c] = append(clusters[c], m)
		}
	}
	return clusters
}

// repair connects every isolated node to the nearest connected node by
// impressions, preferring its own cluster
func repair(nodes []model.PropagationNode, clusters [][]int, es *edgeSet) {
	if len(nodes) < 2 {
		return
	}
	nearest := func(i int, candidates []int) int {
		best, bestDiff := -1, 0
		for _, c := range candidates {
			if c == i || es.deg[nodes[c].ID] == 0 {
				continue
			}
			diff := nodes[c].Impressions - nodes[i].Impressions
			if diff < 0 {
				diff = -diff
			}
			if best < 0 || diff < bestDiff {
				best, bestDiff = c, diff
			}
		}
		return best
	}

	all := make([]int, len(nodes))
	for i := range all {
		all[i] = i
	}
	for i := range nodes {
		if es.deg[nodes[i].ID] > 0 {
			continue
		}
		target := nearest(i, clusters[nodes[i].Cluster])
		if target < 0 {
			target = nearest(i, all)
		}
		if target < 0 {
			// Nothing is connected yet; anchor on any other node
			target = 0
			if i == 0 {
				target = 1
			}
		}
		es.add(nodes[i].ID, nodes[target].ID, model.EdgeRelated)
	}
}

func edgeTypeFor(kind model.PostKind, rng *rand.Rand) model.EdgeType {
	switch kind {
	case model.PostReply:
		return model.EdgeReply
	case model.PostQuote:
		return model.EdgeQuote
	case model.PostRetweet:
		return model.EdgeRetweet
	}
	concrete := []model.EdgeType{model.EdgeReply, model.EdgeQuote, model.EdgeRetweet}
	return concrete[rng.Intn(len(concrete))]
}
