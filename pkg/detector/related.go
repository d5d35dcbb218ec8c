package detector

import (
	"sort"

	"github.com/quietpage/proactive-engagement/pkg/journal"
)

// related reports whether two entries are related: created within the
// pattern window of each other and either sharing a topic bucket or
// exceeding the similarity threshold.
func (d *Detector) related(a, b journal.EntrySnapshot) bool {
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > d.cfg.PatternWindow {
		return false
	}

	if journal.SharesTopic(a.Content, b.Content) {
		return true
	}
	return journal.Similarity(a.Content, b.Content) > d.cfg.SimilarityThreshold
}

// relatedClusters groups entries into relatedness clusters of size >= 2.
// Clustering is transitive: an entry joins a cluster when it is related
// to any member. Each cluster is sorted oldest first.
func (d *Detector) relatedClusters(entries []journal.EntrySnapshot) [][]journal.EntrySnapshot {
	n := len(entries)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d.related(entries[i], entries[j]) {
				parent[find(i)] = find(j)
			}
		}
	}

	groups := make(map[int][]journal.EntrySnapshot)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], entries[i])
	}

	var clusters [][]journal.EntrySnapshot
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		clusters = append(clusters, group)
	}

	// Deterministic cluster order for reproducible detection runs.
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i][0].CreatedAt.Before(clusters[j][0].CreatedAt)
	})
	return clusters
}
