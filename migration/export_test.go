package migration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeExportString(t *testing.T, s string) []Conversation {
	t.Helper()
	convs, err := DecodeExport(context.Background(), strings.NewReader(s))
	if err != nil {
		t.Fatalf("DecodeExport: %v", err)
	}
	return convs
}

func texts(c Conversation) []string {
	out := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.Role+":"+m.Text)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecodeExport_BranchesAreFlattenedInVisitOrder(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{
		"title": "t",
		"mapping": {
			"root": {"id": "root", "parent": null, "children": ["a", "b"], "message": null},
			"a":  {"parent": "root", "children": ["a2"], "message": {"author": {"role": "user"}, "content": {"parts": ["hi A"]}}},
			"a2": {"parent": "a", "children": [], "message": {"author": {"role": "assistant"}, "content": {"parts": ["reply A"]}}},
			"b":  {"parent": "root", "children": ["b2"], "message": {"author": {"role": "user"}, "content": {"parts": ["hi B"]}}},
			"b2": {"parent": "b", "children": [], "message": {"author": {"role": "assistant"}, "content": {"parts": ["reply B"]}}}
		}
	}`)

	if len(convs) != 1 {
		t.Fatalf("len(convs)=%d, want 1", len(convs))
	}
	want := []string{"user:hi A", "assistant:reply A", "user:hi B", "assistant:reply B"}
	if got := texts(convs[0]); !equalStrings(got, want) {
		t.Fatalf("messages=%v, want %v", got, want)
	}

	rows := BuildTranscript(convs, TranscriptOptions{})
	if len(rows) != 4 {
		t.Fatalf("len(rows)=%d, want 4 (conversation survives the length filter)", len(rows))
	}
}

func TestDecodeExport_EmptyPartsContributeNothingButDescendantsAreVisited(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{"mapping": {
		"r": {"parent": null, "children": ["c"]},
		"c": {"parent": "r", "children": ["d"], "message": {"author": {"role": "user"}, "content": {"parts": []}}},
		"d": {"parent": "c", "children": [], "message": {"author": {"role": "assistant"}, "content": {"parts": ["deep"]}}}
	}}`)

	if len(convs) != 1 {
		t.Fatalf("len(convs)=%d, want 1", len(convs))
	}
	if got := texts(convs[0]); !equalStrings(got, []string{"assistant:deep"}) {
		t.Fatalf("messages=%v", got)
	}
}

func TestDecodeExport_RootsFollowFileOrder(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{"mapping": {
		"zeta":  {"parent": null, "children": ["z1"]},
		"z1":    {"parent": "zeta", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["first"]}}},
		"alpha": {"parent": null, "children": ["a1"]},
		"a1":    {"parent": "alpha", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["second"]}}}
	}}`)

	if len(convs) != 2 {
		t.Fatalf("len(convs)=%d, want 2", len(convs))
	}
	if convs[0].Messages[0].Text != "first" || convs[1].Messages[0].Text != "second" {
		t.Fatalf("order=%v / %v", texts(convs[0]), texts(convs[1]))
	}
}

func TestDecodeExport_ArrayConcatenatesAndSkipsElementsWithoutMapping(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `[
		{"mapping": {"r": {"parent": null, "children": ["m"]}, "m": {"parent": "r", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["one"]}}}}},
		{"title": "no mapping"},
		42,
		{"mapping": {"r": {"parent": null, "children": ["m"]}, "m": {"parent": "r", "children": [], "message": {"author": {"role": "assistant"}, "content": {"parts": ["two"]}}}}}
	]`)

	if len(convs) != 2 {
		t.Fatalf("len(convs)=%d, want 2", len(convs))
	}
	if convs[0].Messages[0].Text != "one" || convs[1].Messages[0].Text != "two" {
		t.Fatalf("got %v / %v", texts(convs[0]), texts(convs[1]))
	}
}

func TestDecodeExport_MalformedReferencesAreEmptyBranches(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{"mapping": {
		"r":   {"parent": null, "children": ["gone", "bad", 7, "ok"]},
		"bad": "not a node",
		"ok":  {"parent": "r", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["survivor"]}}}
	}}`)

	if len(convs) != 1 {
		t.Fatalf("len(convs)=%d, want 1", len(convs))
	}
	if got := texts(convs[0]); !equalStrings(got, []string{"user:survivor"}) {
		t.Fatalf("messages=%v", got)
	}
}

func TestDecodeExport_CycleTerminates(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{"mapping": {
		"r": {"parent": null, "children": ["a"]},
		"a": {"parent": "r", "children": ["b"], "message": {"author": {"role": "user"}, "content": {"parts": ["a"]}}},
		"b": {"parent": "a", "children": ["a"], "message": {"author": {"role": "assistant"}, "content": {"parts": ["b"]}}}
	}}`)

	if len(convs) != 1 {
		t.Fatalf("len(convs)=%d, want 1", len(convs))
	}
	if got := texts(convs[0]); !equalStrings(got, []string{"user:a", "assistant:b"}) {
		t.Fatalf("messages=%v", got)
	}
}

func TestDecodeExport_RootRules(t *testing.T) {
	t.Parallel()

	convs := decodeExportString(t, `{"mapping": {
		"lonely":   {"parent": null, "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["alone"]}}},
		"emptyPar": {"parent": "", "children": ["x"]},
		"silent":   {"children": ["s1"]},
		"s1":       {"parent": "silent", "children": [], "message": {"author": {"role": "system"}, "content": {"parts": ["sys"]}}},
		"x":        {"parent": "emptyPar", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["x"]}}}
	}}`)

	// lonely has no children, emptyPar has a (non-null) parent, silent yields no user/assistant messages.
	if len(convs) != 0 {
		t.Fatalf("len(convs)=%d, want 0: %v", len(convs), convs)
	}
}

func TestExtractMessage_PartCoercion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"strings", `{"author":{"role":"user"},"content":{"parts":["a","b"]}}`, "a b", true},
		{"dict with text", `{"author":{"role":"user"},"content":{"parts":[{"text":"from dict"}, "tail"]}}`, "from dict tail", true},
		{"dict without text", `{"author":{"role":"user"},"content":{"parts":[{"asset":"x"}]}}`, `{"asset":"x"}`, true},
		{"number part", `{"author":{"role":"assistant"},"content":{"parts":[1, true]}}`, "1 true", true},
		// Non-string parts render as compact JSON literals, not host-language reprs.
		{"literal parts", `{"author":{"role":"user"},"content":{"parts":[true, false, null, 2.5]}}`, "true false null 2.5", true},
		{"nested object part", `{"author":{"role":"user"},"content":{"parts":[{ "a" : 1 }, "x"]}}`, `{"a":1} x`, true},
		{"null text field", `{"author":{"role":"user"},"content":{"parts":[{"text":null}]}}`, "null", true},
		{"null only", `{"author":{"role":"user"},"content":{"parts":[null]}}`, "null", true},
		{"scalar parts", `{"author":{"role":"assistant"},"content":{"parts":"  plain  "}}`, "plain", true},
		{"empty parts", `{"author":{"role":"user"},"content":{"parts":[]}}`, "", false},
		{"empty string parts", `{"author":{"role":"user"},"content":{"parts":""}}`, "", false},
		{"tool role", `{"author":{"role":"tool"},"content":{"parts":["x"]}}`, "", false},
		{"no author", `{"content":{"parts":["x"]}}`, "", false},
		{"empty message", `{}`, "", false},
		{"null", `null`, "", false},
		{"whitespace only", `{"author":{"role":"user"},"content":{"parts":["  ", "\n"]}}`, "", true},
	}
	for _, tc := range cases {
		msg, ok := extractMessage(json.RawMessage(tc.raw))
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v, want %v", tc.name, ok, tc.ok)
		}
		if ok && msg.Text != tc.want {
			t.Fatalf("%s: text=%q, want %q", tc.name, msg.Text, tc.want)
		}
	}
}

func TestDecodeExport_Errors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{``, `{"mapping": {`, `[{"mapping": {}}`, `{"mapping": {}} trailing`} {
		if _, err := DecodeExport(context.Background(), strings.NewReader(in)); err == nil {
			t.Fatalf("DecodeExport(%q): expected error", in)
		}
	}

	convs, err := DecodeExport(context.Background(), strings.NewReader(`"just a string"`))
	if err != nil || len(convs) != 0 {
		t.Fatalf("scalar document: convs=%v err=%v", convs, err)
	}
}

func TestReadExport_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := ReadExport(context.Background(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadExport_File(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "conversations.json")
	doc := `[{"mapping": {"r": {"parent": null, "children": ["m"]}, "m": {"parent": "r", "children": [], "message": {"author": {"role": "user"}, "content": {"parts": ["hello"]}}}}}]`
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	convs, err := ReadExport(context.Background(), p)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(convs) != 1 || convs[0].Messages[0].Text != "hello" {
		t.Fatalf("convs=%v", convs)
	}
}
