package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/affect-extract/migration"
)

type Config struct {
	InputPath     string
	OutputPath    string
	Clusters      string
	SelectionPath string
	Overwrite     bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.Clusters == "" && c.SelectionPath == "" {
		return errors.New("missing -clusters or -selection")
	}
	if c.Clusters != "" && c.SelectionPath != "" {
		return errors.New("-clusters and -selection are mutually exclusive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath: "clustered_conversations.csv",
	}
}

// defaultOutputPath names the output after the selected clusters, next to the input:
// clusters 0 and 3 give cluster_0_3_conversations.csv.
func defaultOutputPath(inputPath string, clusters []int) string {
	return filepath.Join(filepath.Dir(inputPath), migration.FilteredTableName(clusters))
}
