package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/affect-extract/migration/fileutils"
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

	if err := os.MkdirAll(filepath.Clean(cfg.BaseDir), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -base-dir: %w", err).Error())
		os.Exit(2)
	}

	if err := run(ctx, cfg, runGo, os.Stdout); err != nil {
		os.Exit(1)
	}
}

// runner executes one `go run` invocation.
type runner func(ctx context.Context, args ...string) error

func run(ctx context.Context, cfg Config, goRun runner, stdout io.Writer) error {
	for _, stage := range stagesToRun(cfg) {
		args, skip := stageArgs(cfg, stage)
		if skip != "" {
			fmt.Fprintf(stdout, "skip %s: %s\n", stage, skip)
			continue
		}
		if err := goRun(ctx, args...); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

func stagesToRun(cfg Config) []string {
	if cfg.OnlyStage != "" {
		return []string{normalizeStage(cfg.OnlyStage)}
	}
	if cfg.FromStage != "" {
		return stagesFrom(allStages, cfg.FromStage)
	}
	return allStages
}

// stageArgs builds the go run arguments for stage, or returns a reason to skip it.
func stageArgs(cfg Config, stage string) ([]string, string) {
	p := cfg.paths()
	var args []string
	switch stage {
	case "extract":
		if !cfg.Overwrite && fileutils.FileExists(p.transcript) {
			return nil, p.transcript + " already exists"
		}
		args = []string{
			"run", "./cmd/transcript-extractor",
			"-in", filepath.Clean(cfg.ConversationsPath),
			"-out", p.transcript,
			"-min-messages", strconv.Itoa(cfg.MinMessages),
			"-max-chars", strconv.Itoa(cfg.MaxChars),
		}
	case "cluster":
		if !cfg.Overwrite && fileutils.FileExists(p.clustered) {
			return nil, p.clustered + " already exists"
		}
		args = []string{
			"run", "./cmd/affect-cluster",
			"-in", p.transcript,
			"-out", p.clustered,
			"-summary-out", p.summary,
			"-k", strconv.Itoa(cfg.K),
			"-n-init", strconv.Itoa(cfg.NInit),
			"-seed", strconv.FormatUint(cfg.Seed, 10),
		}
		if cfg.Pretty {
			args = append(args, "-pretty")
		}
	case "label":
		if !cfg.Label {
			return nil, "pass -label to ask a model for cluster labels"
		}
		if !cfg.Overwrite && fileutils.FileExists(p.labels) {
			return nil, p.labels + " already exists"
		}
		args = []string{
			"run", "./cmd/cluster-labeler",
			"-in", p.summary,
			"-out", p.labels,
			"-model", cfg.Model,
		}
		if cfg.Pretty {
			args = append(args, "-pretty")
		}
	case "filter":
		if p.filtered != "" && !cfg.Overwrite && fileutils.FileExists(p.filtered) {
			return nil, p.filtered + " already exists"
		}
		args = []string{
			"run", "./cmd/affect-filter",
			"-in", p.clustered,
		}
		if p.filtered != "" {
			args = append(args, "-out", p.filtered)
		}
		switch {
		case cfg.Clusters != "":
			args = append(args, "-clusters", cfg.Clusters)
		case cfg.SelectionPath != "":
			args = append(args, "-selection", filepath.Clean(cfg.SelectionPath))
		default:
			return nil, "review " + p.summary + " and rerun with -only-stage filter -clusters <ids>"
		}
	default:
		return nil, "unknown stage"
	}
	if cfg.Overwrite {
		args = append(args, "-overwrite")
	}
	return args, ""
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConversationsPath, "conversations", cfg.ConversationsPath, "Path to conversations.json")
	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Directory for the transcript, clustered table, summary, and filtered output")
	fs.IntVar(&cfg.MinMessages, "min-messages", cfg.MinMessages, "Drop conversations with fewer raw messages")
	fs.IntVar(&cfg.MaxChars, "max-chars", cfg.MaxChars, "Truncate cleaned message text to this many characters")
	fs.IntVar(&cfg.K, "k", cfg.K, "Number of clusters")
	fs.IntVar(&cfg.NInit, "n-init", cfg.NInit, "Independent k-means runs")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.BoolVar(&cfg.Label, "label", false, "Run the label stage (uses OPENAI_API_KEY)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for the label stage")
	fs.StringVar(&cfg.Clusters, "clusters", "", "Comma-separated cluster IDs for the filter stage, e.g. 0,3")
	fs.StringVar(&cfg.SelectionPath, "selection", "", "YAML selection file for the filter stage")
	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: "+strings.Join(allStages, "|"))
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: "+strings.Join(allStages, "|"))
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print JSON outputs where supported")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing outputs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func runGo(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = normalizeStage(from)
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}
