package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/theimaginaryfoundation/affect-extract/migration"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	selected, err := selectedClusters(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := run(cfg, selected, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// selectedClusters resolves -clusters or -selection into a sorted, de-duplicated list.
func selectedClusters(cfg Config) ([]int, error) {
	return migration.ResolveClusters(cfg.Clusters, cfg.SelectionPath)
}

func run(cfg Config, selected []int, stdout, stderr io.Writer) error {
	out := cfg.OutputPath
	if out == "" {
		out = defaultOutputPath(cfg.InputPath, selected)
	}

	annotated, err := migration.ReadTableCSV(cfg.InputPath)
	if err != nil {
		return err
	}
	filtered, stats, err := migration.FilterByClusters(annotated, selected)
	if err != nil {
		return err
	}
	if stats.Conversations == 0 {
		fmt.Fprintf(stderr, "warning: no conversations matched clusters %v\n", selected)
	}
	if err := migration.WriteTableCSV(out, filtered, cfg.Overwrite); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "clusters=%v conversations_kept=%d rows_written=%d out=%s\n",
		selected, stats.Conversations, stats.Rows, out)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Clustered transcript CSV written by affect-cluster")
	fs.StringVar(&cfg.OutputPath, "out", "", "Output CSV (default: cluster_<ids>_conversations.csv next to -in)")
	fs.StringVar(&cfg.Clusters, "clusters", "", "Comma-separated cluster IDs to keep, e.g. 0,3")
	fs.StringVar(&cfg.SelectionPath, "selection", "", "YAML file with a clusters: [...] list (alternative to -clusters)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing output file")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/affect-filter -in clustered_conversations.csv -clusters 0,3")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	if cfg.OutputPath != "" {
		cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	}
	if cfg.SelectionPath != "" {
		cfg.SelectionPath = filepath.Clean(cfg.SelectionPath)
	}
	return cfg, nil
}
