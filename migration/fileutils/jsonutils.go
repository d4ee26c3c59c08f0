package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeModelJSON unmarshals a model's JSON answer into v. Models sometimes fence the JSON in a
// markdown code block or surround it with prose, so after a direct attempt it retries on the
// fenced body and then on the outermost {...} or [...] span.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	if body, ok := codeFenceBody(s); ok {
		if err := json.Unmarshal([]byte(body), v); err == nil {
			return nil
		}
		s = body
	}

	sub, ok := outermostSpan(s, '{', '}')
	if !ok {
		sub, ok = outermostSpan(s, '[', ']')
	}
	if !ok {
		return fmt.Errorf("no JSON value found in model output (len=%d)", len(s))
	}
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

// codeFenceBody returns the contents of the first ``` block, dropping an info string such as "json".
func codeFenceBody(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func outermostSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
