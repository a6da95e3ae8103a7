package graph

import (
	"log/slog"

	"github.com/ppiankov/veracast/internal/model"
)

// ComputeStatistics derives statistics from the node set
func ComputeStatistics(nodes []model.PropagationNode) model.Statistics {
	var s model.Statistics
	for _, n := range nodes {
		s.TotalImpressions += n.Impressions
		switch n.Stance {
		case model.StanceSupports:
			s.Supporters++
		case model.StanceContradicts:
			s.Contradictors++
		default:
			s.Neutral++
		}
	}
	return s
}

// Normalize returns the cache form of g: no layout positions, edges as id
// pairs that reference existing nodes, no parallel edges, fresh statistics
func Normalize(g *model.ClaimGraph, logger *slog.Logger) *model.ClaimGraph {
	out := g.Clone()
	for i := range out.Nodes {
		out.Nodes[i].Position = nil
	}
	out.Edges = cleanEdges(out.Nodes, out.Edges, logger)
	out.Statistics = ComputeStatistics(out.Nodes)
	return out
}

// cleanEdges drops dangling and repeated (source, target) edges
func cleanEdges(nodes []model.PropagationNode, edges []model.PropagationEdge, logger *slog.Logger) []model.PropagationEdge {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	seen := make(map[[2]string]bool, len(edges))
	out := make([]model.PropagationEdge, 0, len(edges))
	for _, e := range edges {
		if !ids[e.Source] || !ids[e.Target] {
			if logger != nil {
				logger.Warn("dropping dangling edge", "source", e.Source, "target", e.Target)
			}
			continue
		}
		k := [2]string{e.Source, e.Target}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// Merge unions incoming into existing and returns a new graph. Known nodes
// keep their stance, cluster and hub status; new nodes join the visual
// cluster of their stance with the fewest members, and each incoming hub is
// bridged to that cluster's existing hub. Edges are unioned by (source,
// target). Statistics are recomputed from scratch.
func Merge(existing, incoming *model.ClaimGraph, logger *slog.Logger) *model.ClaimGraph {
	if logger == nil {
		logger = slog.Default()
	}
	out := existing.Clone()
	if incoming == nil {
		out.Statistics = ComputeStatistics(out.Nodes)
		return out
	}

	idx := out.NodeIndex()

	// Visual clusters per stance bucket, with member counts
	sizes := make(map[int]int)
	bucketOf := make(map[int]int)
	hubOf := make(map[int]string)
	for _, n := range out.Nodes {
		sizes[n.Cluster]++
		bucketOf[n.Cluster] = n.ClusterIndex
		if n.IsHub {
			hubOf[n.Cluster] = n.ID
		}
	}
	nextCluster := 0
	for c := range sizes {
		if c >= nextCluster {
			nextCluster = c + 1
		}
	}
	pickCluster := func(bucket int) int {
		best, bestSize := -1, 0
		for c, b := range bucketOf {
			if b != bucket {
				continue
			}
			if best < 0 || sizes[c] < bestSize || (sizes[c] == bestSize && c < best) {
				best, bestSize = c, sizes[c]
			}
		}
		if best < 0 {
			best = nextCluster
			nextCluster++
			bucketOf[best] = bucket
		}
		return best
	}

	var bridges []model.PropagationEdge
	for _, n := range incoming.Nodes {
		if i, ok := idx[n.ID]; ok {
			if n.Stance != "" && n.Stance != out.Nodes[i].Stance {
				logger.Warn("ignoring stance reassignment", "node", n.ID, "kept", out.Nodes[i].Stance, "observed", n.Stance)
			}
			continue
		}
		wasHub := n.IsHub
		n.Position = nil
		n.ClusterIndex = n.Stance.ClusterIndex()
		n.Cluster = pickCluster(n.ClusterIndex)
		n.IsHub = false
		if hub, ok := hubOf[n.Cluster]; ok {
			if wasHub {
				bridges = append(bridges, model.PropagationEdge{Source: n.ID, Target: hub, Type: model.EdgeRelated})
			}
		} else {
			// First node of a new visual cluster becomes its hub
			n.IsHub = true
			hubOf[n.Cluster] = n.ID
		}
		sizes[n.Cluster]++
		idx[n.ID] = len(out.Nodes)
		out.Nodes = append(out.Nodes, n)
	}

	// Union edges by (source, target); reverse duplicates are also skipped
	pairs := make(map[[2]string]bool, len(out.Edges))
	for _, e := range out.Edges {
		pairs[pairKey(e.Source, e.Target)] = true
	}
	candidates := make([]model.PropagationEdge, 0, len(incoming.Edges)+len(bridges))
	candidates = append(candidates, incoming.Edges...)
	candidates = append(candidates, bridges...)
	for _, e := range candidates {
		if _, ok := idx[e.Source]; !ok {
			logger.Warn("dropping dangling edge", "source", e.Source, "target", e.Target)
			continue
		}
		if _, ok := idx[e.Target]; !ok {
			logger.Warn("dropping dangling edge", "source", e.Source, "target", e.Target)
			continue
		}
		k := pairKey(e.Source, e.Target)
		if e.Source == e.Target || pairs[k] {
			continue
		}
		pairs[k] = true
		out.Edges = append(out.Edges, e)
	}

	out.Statistics = ComputeStatistics(out.Nodes)
	return out
}
