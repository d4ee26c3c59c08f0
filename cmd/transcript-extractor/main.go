package main

import (
	"context"
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
	if err := fileutils.EnsureWritable(cfg.OutputPath, cfg.Overwrite); err != nil {
		return err
	}

	start := time.Now()
	convs, err := migration.ReadExport(ctx, cfg.InputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "progress transcript-extractor: %d conversations extracted from %s (elapsed=%s)\n",
		len(convs), cfg.InputPath, time.Since(start).Round(time.Millisecond))

	rows := migration.BuildTranscript(convs, migration.TranscriptOptions{
		MinMessages: cfg.MinMessages,
		MaxChars:    cfg.MaxChars,
	})
	if err := migration.WriteTranscriptCSV(cfg.OutputPath, rows, cfg.Overwrite); err != nil {
		return err
	}

	written := 0
	for _, c := range convs {
		if len(c.Messages) >= cfg.MinMessages {
			written++
		}
	}
	fmt.Fprintf(stdout, "conversations_read=%d conversations_written=%d rows_written=%d out=%s\n",
		len(convs), written, len(rows), cfg.OutputPath)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to conversations.json (ChatGPT export: one object with \"mapping\" or an array of them)")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Path of the Conversation,Message,Role,Text CSV to write")
	fs.IntVar(&cfg.MinMessages, "min-messages", cfg.MinMessages, "Drop conversations with fewer raw messages")
	fs.IntVar(&cfg.MaxChars, "max-chars", cfg.MaxChars, "Truncate cleaned message text to this many characters (\"...\" is appended)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing output file")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExample:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-extractor -in conversations.json -out conversations.csv -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}
