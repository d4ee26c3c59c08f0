package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/affect-extract/migration"
	"github.com/theimaginaryfoundation/affect-extract/migration/fileutils"
	"github.com/theimaginaryfoundation/affect-extract/migration/textcluster"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, stdout, stderr io.Writer) error {
	// Check both outputs up front so a long clustering run is not wasted on an existing file.
	if err := fileutils.EnsureWritable(cfg.OutputPath, cfg.Overwrite); err != nil {
		return err
	}
	if err := fileutils.EnsureWritable(cfg.SummaryPath, cfg.Overwrite); err != nil {
		return err
	}

	tbl, err := migration.ReadTableCSV(cfg.InputPath)
	if err != nil {
		return err
	}
	users, err := migration.SelectUserMessages(tbl)
	if err != nil {
		return err
	}
	if len(users.Rows) == 0 {
		return errors.New("no USER messages to cluster")
	}

	start := time.Now()
	vopts := textcluster.DefaultVectorizerOptions()
	vopts.MinDF = cfg.MinDF
	vopts.MaxFeatures = cfg.MaxFeatures
	clustering, err := textcluster.ClusterDocuments(ctx, users.Texts, vopts, textcluster.KMeansOptions{
		K:       cfg.K,
		NInit:   cfg.NInit,
		MaxIter: cfg.MaxIter,
		Tol:     textcluster.DefaultKMeansOptions().Tol,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "progress affect-cluster: %d user messages, %d terms, k=%d inertia=%.4f (elapsed=%s)\n",
		len(users.Rows), len(clustering.Vocabulary), cfg.K, clustering.Result.Inertia, time.Since(start).Round(time.Millisecond))

	annotated, err := migration.AnnotateClusters(tbl, users.Rows, clustering.Result.Labels)
	if err != nil {
		return err
	}
	if err := migration.WriteTableCSV(cfg.OutputPath, annotated, cfg.Overwrite); err != nil {
		return err
	}

	summaries := textcluster.Summarize(clustering.Result, clustering.Vocabulary, users.Conversations, cfg.TopTerms)
	if err := fileutils.WriteJSONFileAtomic(cfg.SummaryPath, summaries, cfg.Pretty); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if err := textcluster.WriteSummaryTable(stdout, summaries); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "messages_clustered=%d clusters=%d out=%s summary=%s\n",
		len(users.Rows), len(summaries), cfg.OutputPath, cfg.SummaryPath)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Transcript CSV written by transcript-extractor")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Transcript CSV with a Cluster column appended (USER rows only)")
	fs.StringVar(&cfg.SummaryPath, "summary-out", cfg.SummaryPath, "JSON file for the per-cluster summary")
	fs.IntVar(&cfg.K, "k", cfg.K, "Number of clusters")
	fs.IntVar(&cfg.NInit, "n-init", cfg.NInit, "Independent k-means runs; the lowest-inertia run is kept")
	fs.IntVar(&cfg.MaxIter, "max-iter", cfg.MaxIter, "Max iterations per k-means run")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.IntVar(&cfg.MinDF, "min-df", cfg.MinDF, "Minimum number of user messages a term must appear in")
	fs.IntVar(&cfg.MaxFeatures, "max-features", cfg.MaxFeatures, "Vocabulary cap, most frequent terms first (0 = unlimited)")
	fs.IntVar(&cfg.TopTerms, "top-terms", cfg.TopTerms, "Terms reported per cluster in the summary")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the summary JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/affect-cluster -in conversations.csv -pretty -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	cfg.SummaryPath = filepath.Clean(cfg.SummaryPath)
	return cfg, nil
}
