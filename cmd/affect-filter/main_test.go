package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const clusteredFixture = "Conversation,Message,Role,Text,Cluster\n" +
	"6,1,USER,fix my code,1\n" +
	"6,2,ASSISTANT,sure,\n" +
	"7,1,USER,I miss her,0\n" +
	"7,2,ASSISTANT,that sounds hard,\n" +
	"7,3,USER,python question,2\n" +
	"8,1,USER,weekend plans,3\n"

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err == nil {
		t.Fatalf("expected error without a selection")
	}
	if err := (Config{InputPath: "a.csv", Clusters: "0", SelectionPath: "s.yaml"}).Validate(); err == nil {
		t.Fatalf("expected error for both -clusters and -selection")
	}
	if err := (Config{InputPath: "a.csv", Clusters: "0,3"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	t.Parallel()

	got := defaultOutputPath(filepath.Join("data", "clustered.csv"), []int{0, 3})
	if want := filepath.Join("data", "cluster_0_3_conversations.csv"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSelectedClusters_FromFlagAndYAML(t *testing.T) {
	t.Parallel()

	got, err := selectedClusters(Config{Clusters: "3, 0,3"})
	if err != nil || len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Fatalf("got=%v err=%v", got, err)
	}

	path := filepath.Join(t.TempDir(), "selection.yaml")
	if err := os.WriteFile(path, []byte("clusters: [3, 0, 3]\nnote: reviewed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = selectedClusters(Config{SelectionPath: path})
	if err != nil || len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("affect-filter", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-clusters", "0,3", "-overwrite"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InputPath != "clustered_conversations.csv" || cfg.Clusters != "0,3" || cfg.OutputPath != "" || !cfg.Overwrite {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestRun_KeepsWholeConversations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "clustered.csv")
	if err := os.WriteFile(in, []byte(clusteredFixture), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := Config{InputPath: in, Clusters: "0,3"}
	var stdout, stderr bytes.Buffer
	if err := run(cfg, []int{0, 3}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := filepath.Join(dir, "cluster_0_3_conversations.csv")
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "Conversation,Message,Role,Text\n" +
		"7,1,USER,I miss her\n" +
		"7,2,ASSISTANT,that sounds hard\n" +
		"7,3,USER,python question\n" +
		"8,1,USER,weekend plans\n"
	if string(b) != want {
		t.Fatalf("csv=\n%s\nwant\n%s", b, want)
	}
	if !strings.Contains(stdout.String(), "conversations_kept=2 rows_written=4") {
		t.Fatalf("stdout=%q", stdout.String())
	}

	// Without -overwrite an existing output is left alone.
	if err := run(cfg, []int{0, 3}, &stdout, &stderr); err == nil {
		t.Fatalf("expected error on existing output")
	}
}

func TestRun_NoMatchWarns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "clustered.csv")
	if err := os.WriteFile(in, []byte(clusteredFixture), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(Config{InputPath: in, OutputPath: filepath.Join(dir, "none.csv")}, []int{9}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr.String(), "no conversations matched") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}
