package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/affect-extract/migration/fileutils"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("transcript-extractor", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InputPath != "conversations.json" || cfg.OutputPath != "conversations.csv" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.MinMessages != 3 || cfg.MaxChars != 500 {
		t.Fatalf("MinMessages=%d MaxChars=%d", cfg.MinMessages, cfg.MaxChars)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("transcript-extractor", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "exports/a.json",
		"-out", "out/t.csv",
		"-min-messages", "5",
		"-max-chars", "80",
		"-overwrite",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InputPath != "exports/a.json" || cfg.OutputPath != "out/t.csv" {
		t.Fatalf("paths=%q %q", cfg.InputPath, cfg.OutputPath)
	}
	if cfg.MinMessages != 5 || cfg.MaxChars != 80 || !cfg.Overwrite {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := (Config{InputPath: "in.json", OutputPath: "out.csv", MinMessages: 3}).Validate(); err == nil {
		t.Fatalf("expected error for MaxChars=0")
	}
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

const exportFixture = `[
	{"title": "kept", "mapping": {
		"r":  {"parent": null, "children": ["u1"]},
		"u1": {"parent": "r", "children": ["a1"], "message": {"author": {"role": "user"}, "content": {"parts": ["I feel\n\nlost\ttoday"]}}},
		"a1": {"parent": "u1", "children": ["u2"], "message": {"author": {"role": "assistant"}, "content": {"parts": ["   "]}}},
		"u2": {"parent": "a1", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["thanks"]}}}
	}},
	{"title": "too short", "mapping": {
		"r":  {"parent": null, "children": ["u1"]},
		"u1": {"parent": "r", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["hi"]}}}
	}}
]`

func TestRun_WritesTranscript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "conversations.json")
	out := filepath.Join(dir, "conversations.csv")
	if err := os.WriteFile(in, []byte(exportFixture), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := defaultConfig()
	cfg.InputPath = in
	cfg.OutputPath = out

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	want := "Conversation,Message,Role,Text\n1,1,USER,I feel lost today\n1,3,USER,thanks\n"
	if string(b) != want {
		t.Fatalf("csv=\n%s\nwant\n%s", b, want)
	}
	if !strings.Contains(stdout.String(), "conversations_read=2 conversations_written=1 rows_written=2") {
		t.Fatalf("stdout=%q", stdout.String())
	}

	// A second run is byte-identical.
	cfg.Overwrite = true
	if err := run(context.Background(), cfg, &stdout, &stderr); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	b2, _ := os.ReadFile(out)
	if !bytes.Equal(b, b2) {
		t.Fatalf("rerun output differs")
	}
}

func TestRun_MalformedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "conversations.json")
	if err := os.WriteFile(in, []byte(`{"mapping": `), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := defaultConfig()
	cfg.InputPath = in
	cfg.OutputPath = filepath.Join(dir, "out.csv")

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(cfg.OutputPath); err == nil {
		t.Fatalf("output should not be written on failure")
	}
}

func TestRun_ExistingOutputFailsBeforeReadingExport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "conversations.json")
	// Malformed on purpose: the output check must fail first.
	if err := os.WriteFile(in, []byte(`{"mapping": `), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := defaultConfig()
	cfg.InputPath = in
	cfg.OutputPath = filepath.Join(dir, "out.csv")
	if err := os.WriteFile(cfg.OutputPath, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); !errors.Is(err, fileutils.ErrExists) {
		t.Fatalf("err=%v, want ErrExists", err)
	}
	if stderr.Len() != 0 {
		t.Fatalf("export was read: stderr=%q", stderr.String())
	}
	b, _ := os.ReadFile(cfg.OutputPath)
	if string(b) != "keep me" {
		t.Fatalf("output changed: %q", b)
	}

	if err := os.WriteFile(in, []byte(exportFixture), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.Overwrite = true
	if err := run(context.Background(), cfg, &stdout, &stderr); err != nil {
		t.Fatalf("run with overwrite: %v", err)
	}
	b, _ = os.ReadFile(cfg.OutputPath)
	if !strings.HasPrefix(string(b), "Conversation,Message,Role,Text\n") {
		t.Fatalf("output=%q", b)
	}
}
