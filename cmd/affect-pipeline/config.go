package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/theimaginaryfoundation/affect-extract/migration"
)

var allStages = []string{"extract", "cluster", "label", "filter"}

type Config struct {
	ConversationsPath string
	BaseDir           string

	MinMessages int
	MaxChars    int

	K     int
	NInit int
	Seed  uint64

	Label bool
	Model string

	Clusters      string
	SelectionPath string

	FromStage string
	OnlyStage string

	Pretty    bool
	Overwrite bool
}

func (c Config) Validate() error {
	if c.ConversationsPath == "" {
		return errors.New("missing -conversations")
	}
	if c.BaseDir == "" {
		return errors.New("missing -base-dir")
	}
	if c.MinMessages <= 0 || c.MaxChars <= 0 {
		return errors.New("min-messages/max-chars must be > 0")
	}
	if c.K <= 0 || c.NInit <= 0 {
		return errors.New("k/n-init must be > 0")
	}
	if c.Label && c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Clusters != "" && c.SelectionPath != "" {
		return errors.New("-clusters and -selection are mutually exclusive")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !slices.Contains(allStages, normalizeStage(s)) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(allStages, "|"))
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		ConversationsPath: "conversations.json",
		BaseDir:           ".",
		MinMessages:       3,
		MaxChars:          500,
		K:                 5,
		NInit:             20,
		Seed:              42,
		Model:             "gpt-5-mini",
	}
}

// paths lays out every intermediate file under BaseDir.
type paths struct {
	transcript string
	clustered  string
	summary    string
	labels     string

	// filtered is empty until -clusters or -selection names a valid cluster list.
	filtered string
}

func (c Config) paths() paths {
	base := filepath.Clean(c.BaseDir)
	p := paths{
		transcript: filepath.Join(base, "conversations.csv"),
		clustered:  filepath.Join(base, "clustered_conversations.csv"),
		summary:    filepath.Join(base, "cluster_summary.json"),
		labels:     filepath.Join(base, "cluster_labels.json"),
	}
	if c.Clusters != "" || c.SelectionPath != "" {
		// A bad list is left for affect-filter to report.
		if clusters, err := migration.ResolveClusters(c.Clusters, c.SelectionPath); err == nil {
			p.filtered = filepath.Join(base, migration.FilteredTableName(clusters))
		}
	}
	return p
}

func normalizeStage(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
