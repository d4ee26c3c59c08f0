package migration

import (
	"strings"
	"unicode"
)

const (
	// DefaultMinMessages is the shortest conversation (raw messages, before cleaning) kept in a transcript.
	DefaultMinMessages = 3

	// DefaultMaxChars caps cleaned message text, in characters, before the ellipsis is appended.
	DefaultMaxChars = 500

	truncationSuffix = "..."
)

// TranscriptRow is one line of the flat transcript table.
type TranscriptRow struct {
	Conversation int
	Message      int
	Role         string
	Text         string
}

// TranscriptOptions controls BuildTranscript.
type TranscriptOptions struct {
	// MinMessages drops conversations with fewer raw messages (defaults to DefaultMinMessages).
	MinMessages int

	// MaxChars truncates cleaned text (defaults to DefaultMaxChars).
	MaxChars int
}

// BuildTranscript filters short conversations, cleans every message and numbers the rows.
//
// Conversation numbers are dense over the conversations that pass the length filter.
// Message numbers are positions in the raw conversation, so a message that cleans to empty
// is dropped and leaves a gap.
func BuildTranscript(convs []Conversation, opts TranscriptOptions) []TranscriptRow {
	if opts.MinMessages <= 0 {
		opts.MinMessages = DefaultMinMessages
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}

	var rows []TranscriptRow
	convIdx := 0
	for _, conv := range convs {
		if len(conv.Messages) < opts.MinMessages {
			continue
		}
		convIdx++
		for i, m := range conv.Messages {
			text := CleanMessage(m.Text, opts.MaxChars)
			if text == "" {
				continue
			}
			rows = append(rows, TranscriptRow{
				Conversation: convIdx,
				Message:      i + 1,
				Role:         strings.ToUpper(m.Role),
				Text:         text,
			})
		}
	}
	return rows
}

// CleanMessage flattens whitespace to single spaces and truncates to maxChars characters,
// appending "..." when anything was cut. maxChars <= 0 disables truncation.
func CleanMessage(s string, maxChars int) string {
	s = strings.Join(strings.FieldsFunc(s, isSpace), " ")
	if maxChars <= 0 {
		return s
	}

	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i] + truncationSuffix
		}
		n++
	}
	return s
}

// isSpace reports Unicode White_Space plus the ASCII information separators (0x1c-0x1f), which
// exports occasionally carry between words.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
