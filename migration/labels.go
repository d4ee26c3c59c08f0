package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/affect-extract/migration/textcluster"
)

// ClusterLabel is a suggested human-readable name for one cluster.
type ClusterLabel struct {
	Cluster int    `json:"cluster"`
	Label   string `json:"label"`

	// Affective marks clusters whose terms read as emotionally salient.
	Affective bool `json:"affective"`

	Rationale string `json:"rationale,omitempty"`
}

// ClusterLabeler names clusters from their summaries. Labels are suggestions for the operator;
// they never select clusters on their own.
type ClusterLabeler interface {
	LabelClusters(ctx context.Context, summaries []textcluster.ClusterSummary) ([]ClusterLabel, error)
}

// LabelClusters asks labeler for labels and returns exactly one label per summary, in cluster order.
// Labels for unknown clusters are dropped; clusters the labeler skipped get an empty label.
func LabelClusters(ctx context.Context, labeler ClusterLabeler, summaries []textcluster.ClusterSummary) ([]ClusterLabel, error) {
	if labeler == nil {
		return nil, errors.New("LabelClusters: labeler is nil")
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	got, err := labeler.LabelClusters(ctx, summaries)
	if err != nil {
		return nil, fmt.Errorf("LabelClusters: %w", err)
	}

	byCluster := make(map[int]ClusterLabel, len(got))
	for _, l := range got {
		if _, dup := byCluster[l.Cluster]; dup {
			continue
		}
		l.Label = strings.TrimSpace(l.Label)
		l.Rationale = strings.TrimSpace(l.Rationale)
		byCluster[l.Cluster] = l
	}

	out := make([]ClusterLabel, 0, len(summaries))
	for _, s := range summaries {
		l, ok := byCluster[s.Cluster]
		if !ok {
			l = ClusterLabel{Cluster: s.Cluster}
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out, nil
}

// AffectiveClusters returns the IDs of clusters labeled affective, ascending.
func AffectiveClusters(labels []ClusterLabel) []int {
	var out []int
	for _, l := range labels {
		if l.Affective {
			out = append(out, l.Cluster)
		}
	}
	sort.Ints(out)
	return out
}
