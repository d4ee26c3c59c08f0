package textcluster

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// DefaultTopTerms is the number of centroid terms reported per cluster.
const DefaultTopTerms = 10

// ClusterSummary describes one cluster for human inspection.
type ClusterSummary struct {
	Cluster       int      `json:"cluster"`
	TopTerms      []string `json:"top_terms"`
	Messages      int      `json:"n_messages"`
	Conversations int      `json:"n_conversations"`
}

// Clustering is the outcome of ClusterDocuments.
type Clustering struct {
	Vocabulary []string
	Result     KMeansResult
}

// ClusterDocuments vectorizes docs with TF-IDF and partitions them with k-means.
func ClusterDocuments(ctx context.Context, docs []string, vopts VectorizerOptions, kopts KMeansOptions) (Clustering, error) {
	vec := NewVectorizer(vopts)
	rows, err := vec.FitTransform(docs)
	if err != nil {
		return Clustering{}, fmt.Errorf("ClusterDocuments: vectorize: %w", err)
	}
	res, err := KMeans(ctx, rows, len(vec.Vocabulary()), kopts)
	if err != nil {
		return Clustering{}, fmt.Errorf("ClusterDocuments: %w", err)
	}
	return Clustering{Vocabulary: vec.Vocabulary(), Result: res}, nil
}

// Summarize reports, per cluster, its topN heaviest centroid terms, its size, and how many distinct
// conversations its members come from. conversations[i] identifies the conversation of row i.
func Summarize(res KMeansResult, vocab []string, conversations []string, topN int) []ClusterSummary {
	out := make([]ClusterSummary, len(res.Centroids))
	convs := make([]map[string]struct{}, len(res.Centroids))
	for c := range out {
		out[c] = ClusterSummary{
			Cluster:  c,
			TopTerms: TopTerms(res.Centroids[c], vocab, topN),
		}
		convs[c] = make(map[string]struct{})
	}
	for i, label := range res.Labels {
		out[label].Messages++
		if i < len(conversations) {
			convs[label][conversations[i]] = struct{}{}
		}
	}
	for c := range out {
		out[c].Conversations = len(convs[c])
	}
	return out
}

// TopTerms returns the n terms with the largest centroid weight, heaviest first. Equal weights keep
// vocabulary order.
func TopTerms(centroid []float64, vocab []string, n int) []string {
	idx := make([]int, len(centroid))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return centroid[idx[a]] > centroid[idx[b]] })
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, 0, n)
	for _, j := range idx[:n] {
		if j < len(vocab) {
			out = append(out, vocab[j])
		}
	}
	return out
}

// WriteSummaryTable prints summaries as an aligned table.
func WriteSummaryTable(w io.Writer, summaries []ClusterSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "cluster\tn_messages\tn_conversations\ttop_terms")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", s.Cluster, s.Messages, s.Conversations, strings.Join(s.TopTerms, ", "))
	}
	return tw.Flush()
}
