package migration

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UserMessages is the USER-authored slice of a transcript table, in row order.
type UserMessages struct {
	// Rows are indexes into the source table's Rows.
	Rows []int

	// Texts are the message bodies; missing cells are empty strings.
	Texts []string

	// Conversations are the raw Conversation cells, used as conversation identifiers.
	Conversations []string
}

// SelectUserMessages returns every row whose Role is USER.
func SelectUserMessages(t Table) (UserMessages, error) {
	idx, err := t.columns(ColConversation, ColRole, ColText)
	if err != nil {
		return UserMessages{}, fmt.Errorf("SelectUserMessages: %w", err)
	}
	convCol, roleCol, textCol := idx[0], idx[1], idx[2]

	var um UserMessages
	for i, row := range t.Rows {
		if cell(row, roleCol) != RoleUser {
			continue
		}
		um.Rows = append(um.Rows, i)
		um.Texts = append(um.Texts, cell(row, textCol))
		um.Conversations = append(um.Conversations, cell(row, convCol))
	}
	return um, nil
}

// AnnotateClusters returns a copy of t with a Cluster column appended. labels[i] is the cluster of
// row rows[i]; every other row gets an empty Cluster cell.
func AnnotateClusters(t Table, rows []int, labels []int) (Table, error) {
	if len(rows) != len(labels) {
		return Table{}, fmt.Errorf("AnnotateClusters: %d rows but %d labels", len(rows), len(labels))
	}
	if t.Column(ColCluster) >= 0 {
		return Table{}, fmt.Errorf("AnnotateClusters: table already has a %q column", ColCluster)
	}

	byRow := make(map[int]int, len(rows))
	for i, r := range rows {
		if r < 0 || r >= len(t.Rows) {
			return Table{}, fmt.Errorf("AnnotateClusters: row %d out of range", r)
		}
		byRow[r] = labels[i]
	}

	width := len(t.Header)
	out := Table{
		Header: append(append([]string(nil), t.Header...), ColCluster),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		nr := make([]string, width+1)
		copy(nr, row)
		if label, ok := byRow[i]; ok {
			nr[width] = strconv.Itoa(label)
		}
		out.Rows[i] = nr
	}
	return out, nil
}

// FilterStats describes a FilterByClusters run.
type FilterStats struct {
	Conversations int
	Rows          int
}

// FilterByClusters keeps every row (any role) of each conversation that has at least one USER row
// assigned to a selected cluster. Row order is preserved and the Cluster column is dropped, so the
// result has the transcript's original columns.
func FilterByClusters(annotated Table, selected []int) (Table, FilterStats, error) {
	idx, err := annotated.columns(ColConversation, ColRole, ColCluster)
	if err != nil {
		return Table{}, FilterStats{}, fmt.Errorf("FilterByClusters: %w", err)
	}
	convCol, roleCol, clusterCol := idx[0], idx[1], idx[2]

	want := make(map[int]struct{}, len(selected))
	for _, c := range selected {
		want[c] = struct{}{}
	}

	keep := make(map[string]struct{})
	for i, row := range annotated.Rows {
		if cell(row, roleCol) != RoleUser {
			continue
		}
		raw := strings.TrimSpace(cell(row, clusterCol))
		if raw == "" {
			continue
		}
		c, err := strconv.Atoi(raw)
		if err != nil {
			return Table{}, FilterStats{}, fmt.Errorf("FilterByClusters: row %d: bad cluster %q", i+1, raw)
		}
		if _, ok := want[c]; ok {
			keep[cell(row, convCol)] = struct{}{}
		}
	}

	out := Table{Header: dropColumn(annotated.Header, clusterCol)}
	for _, row := range annotated.Rows {
		if _, ok := keep[cell(row, convCol)]; ok {
			out.Rows = append(out.Rows, dropColumn(row, clusterCol))
		}
	}
	return out, FilterStats{Conversations: len(keep), Rows: len(out.Rows)}, nil
}

func dropColumn(row []string, i int) []string {
	if i < 0 || i >= len(row) {
		return append([]string(nil), row...)
	}
	out := make([]string, 0, len(row)-1)
	out = append(out, row[:i]...)
	return append(out, row[i+1:]...)
}

// ClusterSelection is the operator's choice of clusters to keep, as stored in a YAML file:
//
//	clusters: [0, 3]
//	note: "0 and 3 read as affective after manual review"
type ClusterSelection struct {
	Clusters []int  `yaml:"clusters"`
	Note     string `yaml:"note,omitempty"`
}

// ReadClusterSelection loads a YAML selection file. Clusters come back sorted with duplicates
// removed.
func ReadClusterSelection(path string) (ClusterSelection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ClusterSelection{}, fmt.Errorf("ReadClusterSelection: %w", err)
	}
	var sel ClusterSelection
	if err := yaml.Unmarshal(b, &sel); err != nil {
		return ClusterSelection{}, fmt.Errorf("ReadClusterSelection: %s: %w", path, err)
	}
	if len(sel.Clusters) == 0 {
		return ClusterSelection{}, fmt.Errorf("ReadClusterSelection: %s: no clusters listed", path)
	}
	for _, c := range sel.Clusters {
		if c < 0 {
			return ClusterSelection{}, fmt.Errorf("ReadClusterSelection: %s: negative cluster %d", path, c)
		}
	}
	sel.Clusters = uniqueSorted(sel.Clusters)
	return sel, nil
}

// ResolveClusters returns the selected clusters from a comma-separated list or, when list is
// empty, from the YAML file at selectionPath.
func ResolveClusters(list, selectionPath string) ([]int, error) {
	if list != "" {
		return ParseClusterList(list)
	}
	if selectionPath == "" {
		return nil, errors.New("no cluster list or selection file")
	}
	sel, err := ReadClusterSelection(selectionPath)
	if err != nil {
		return nil, err
	}
	return sel.Clusters, nil
}

// FilteredTableName names the filtered table after its clusters: 0 and 3 give
// cluster_0_3_conversations.csv.
func FilteredTableName(clusters []int) string {
	ids := make([]string, len(clusters))
	for i, c := range clusters {
		ids[i] = strconv.Itoa(c)
	}
	return "cluster_" + strings.Join(ids, "_") + "_conversations.csv"
}

// ParseClusterList parses a comma-separated list such as "0,3". Duplicates are removed and the
// result is sorted.
func ParseClusterList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty cluster list")
	}
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		c, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("cluster %q: %w", f, err)
		}
		if c < 0 {
			return nil, fmt.Errorf("cluster %d: must be >= 0", c)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.New("empty cluster list")
	}
	return uniqueSorted(out), nil
}

func uniqueSorted(cs []int) []int {
	out := slices.Clone(cs)
	sort.Ints(out)
	return slices.Compact(out)
}
