package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/theimaginaryfoundation/affect-extract/migration"
	"github.com/theimaginaryfoundation/affect-extract/migration/fileutils"
	"github.com/theimaginaryfoundation/affect-extract/migration/provider"
	"github.com/theimaginaryfoundation/affect-extract/migration/textcluster"
)

func main() {
	// A missing .env is fine; the key may come from the environment or -api-key.
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := openai.NewClient(option.WithAPIKey(apiKey))
	labeler := openAIClusterLabeler{
		client:    &client,
		model:     cfg.Model,
		maxOutput: cfg.MaxOutput,
	}
	if err := run(ctx, cfg, labeler, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, labeler migration.ClusterLabeler, stdout, stderr io.Writer) error {
	if err := fileutils.EnsureWritable(cfg.OutputPath, cfg.Overwrite); err != nil {
		return err
	}
	summaries, err := readSummaries(cfg.InputPath)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return errors.New("no clusters in summary")
	}

	start := time.Now()
	labels, err := migration.LabelClusters(ctx, labeler, summaries)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "progress cluster-labeler: %d clusters labeled (elapsed=%s)\n",
		len(labels), time.Since(start).Round(time.Millisecond))

	if err := fileutils.WriteJSONFileAtomic(cfg.OutputPath, labels, cfg.Pretty); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}

	for _, l := range labels {
		mark := " "
		if l.Affective {
			mark = "*"
		}
		fmt.Fprintf(stdout, "%s %d  %s  %s\n", mark, l.Cluster, l.Label, fileutils.Truncate(l.Rationale, 100))
	}
	affective := migration.AffectiveClusters(labels)
	fmt.Fprintf(stdout, "clusters_labeled=%d affective=%d out=%s suggested=-clusters %s\n",
		len(labels), len(affective), cfg.OutputPath, joinInts(affective))
	return nil
}

func readSummaries(path string) ([]textcluster.ClusterSummary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []textcluster.ClusterSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

type labelResponse struct {
	Labels []migration.ClusterLabel `json:"labels"`
}

var labelSchema = provider.GenerateSchema[labelResponse]()

type openAIClusterLabeler struct {
	client    *openai.Client
	model     string
	maxOutput int
}

func (l openAIClusterLabeler) LabelClusters(ctx context.Context, summaries []textcluster.ClusterSummary) ([]migration.ClusterLabel, error) {
	if l.client == nil {
		return nil, errors.New("openAIClusterLabeler: client is nil")
	}
	if l.model == "" {
		return nil, errors.New("openAIClusterLabeler: model is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "ClusterLabels",
			Schema:      labelSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Cluster labels JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           l.model,
		MaxOutputTokens: openai.Int(int64(l.maxOutput)),
		Instructions:    openai.String(clusterLabelerPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildLabelInput(summaries), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := provider.CallWithRetry(ctx, l.client, params)
	if err != nil {
		return nil, err
	}

	var out labelResponse
	if err := fileutils.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	return out.Labels, nil
}

// buildLabelInput renders one line per cluster: number, sizes, then its top terms.
func buildLabelInput(summaries []textcluster.ClusterSummary) string {
	var b strings.Builder
	b.WriteString("CLUSTERS:\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "- cluster %d (%d messages, %d conversations): %s\n",
			s.Cluster, s.Messages, s.Conversations, strings.Join(s.TopTerms, ", "))
	}
	return b.String()
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Cluster summary JSON written by affect-cluster")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "JSON file for the suggested labels")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use (e.g. gpt-5-mini)")
	fs.IntVar(&cfg.MaxOutput, "max-output-tokens", cfg.MaxOutput, "Max output tokens for the labeling call")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the labels JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing labels file")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var and .env)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/cluster-labeler -in cluster_summary.json -pretty")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}
