package migration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Message is one user or assistant utterance recovered from an export node.
type Message struct {
	Role string
	Text string
}

// Conversation is the depth-first flattening of one export tree, in visit order.
type Conversation struct {
	Messages []Message
}

// ReadExport reads an OpenAI conversations export and returns every conversation it contains.
//
// The input is expected to be either:
// - a single export object: { "mapping": { ... }, ... }
// - a top-level JSON array of export objects: [ { "mapping": { ... } }, ... ]
//
// Conversations are returned in the order their root nodes appear in the file.
func ReadExport(ctx context.Context, inputPath string) ([]Conversation, error) {
	if ctx == nil {
		return nil, errors.New("ReadExport: ctx is nil")
	}
	if inputPath == "" {
		return nil, errors.New("ReadExport: inputPath is empty")
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("ReadExport: open input: %w", err)
	}
	defer f.Close()

	convs, err := DecodeExport(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ReadExport: %w", err)
	}
	return convs, nil
}

// DecodeExport is ReadExport over an arbitrary reader.
func DecodeExport(ctx context.Context, r io.Reader) ([]Conversation, error) {
	// The export is typically one huge line; use a larger buffer than default.
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read first token: %w", err)
	}

	var out []Conversation
	delim, ok := tok.(json.Delim)
	if !ok {
		// A scalar document carries no mapping.
		return nil, expectEOF(dec)
	}

	switch delim {
	case '[':
		for dec.More() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("decode export element: %w", err)
			}
			if jsonKind(raw) != '{' {
				continue
			}
			var item map[string]json.RawMessage
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("decode export element: %w", err)
			}
			mapping, ok := item["mapping"]
			if !ok {
				continue
			}
			convs, err := extractFromMapping(ctx, mapping)
			if err != nil {
				return nil, err
			}
			out = append(out, convs...)
		}
		if tok, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("read closing array token: %w", err)
		} else if d, ok := tok.(json.Delim); !ok || d != ']' {
			return nil, fmt.Errorf("expected closing ']', got %v", tok)
		}
	case '{':
		var mapping json.RawMessage
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected string key, got %T", keyTok)
			}
			if key == "mapping" {
				// Later duplicates win, as with any JSON object decode.
				if err := dec.Decode(&mapping); err != nil {
					return nil, fmt.Errorf("decode mapping: %w", err)
				}
				continue
			}
			valTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read value token for key %q: %w", key, err)
			}
			if err := skipValue(dec, valTok); err != nil {
				return nil, fmt.Errorf("skip key %q value: %w", key, err)
			}
		}
		if tok, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("read closing object token: %w", err)
		} else if d, ok := tok.(json.Delim); !ok || d != '}' {
			return nil, fmt.Errorf("expected closing '}', got %v", tok)
		}
		if mapping != nil {
			convs, err := extractFromMapping(ctx, mapping)
			if err != nil {
				return nil, err
			}
			out = convs
		}
	default:
		return nil, fmt.Errorf("unsupported top-level delimiter %q", delim)
	}

	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return out, nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return fmt.Errorf("read trailing data: %w", err)
		}
		return errors.New("unexpected data after top-level JSON value")
	}
	return nil
}

// ExtractConversations decodes a single export mapping (node ID -> node) and flattens every
// root into a Conversation. A root is a node with no parent and at least one child.
func ExtractConversations(ctx context.Context, mapping json.RawMessage) ([]Conversation, error) {
	return extractFromMapping(ctx, mapping)
}

type exportNode struct {
	hasParent bool
	children  []string
	message   json.RawMessage
}

type exportMapping struct {
	raw   *orderedmap.OrderedMap[string, json.RawMessage]
	nodes map[string]*exportNode
}

func extractFromMapping(ctx context.Context, raw json.RawMessage) ([]Conversation, error) {
	if jsonKind(raw) != '{' {
		return nil, nil
	}

	om := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, om); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	m := &exportMapping{
		raw:   om,
		nodes: make(map[string]*exportNode, om.Len()),
	}

	var out []Conversation
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n := m.node(pair.Key)
		if n == nil || n.hasParent || len(n.children) == 0 {
			continue
		}
		msgs := m.traverse(pair.Key)
		if len(msgs) == 0 {
			continue
		}
		out = append(out, Conversation{Messages: msgs})
	}
	return out, nil
}

// node returns the parsed node for id, or nil when id is absent or not a JSON object.
func (m *exportMapping) node(id string) *exportNode {
	if n, ok := m.nodes[id]; ok {
		return n
	}
	raw, ok := m.raw.Get(id)
	var n *exportNode
	if ok {
		n = parseExportNode(raw)
	}
	m.nodes[id] = n
	return n
}

func parseExportNode(raw json.RawMessage) *exportNode {
	if jsonKind(raw) != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	n := &exportNode{message: fields["message"]}
	if p, ok := fields["parent"]; ok && jsonKind(p) != 'n' {
		n.hasParent = true
	}
	if c, ok := fields["children"]; ok && jsonKind(c) == '[' {
		var refs []json.RawMessage
		if err := json.Unmarshal(c, &refs); err == nil {
			for _, ref := range refs {
				// Non-string references cannot name a node; they are empty branches.
				var id string
				if err := json.Unmarshal(ref, &id); err == nil {
					n.children = append(n.children, id)
				}
			}
		}
	}
	return n
}

// traverse walks the tree under rootID in pre-order, children in list order.
// A node that is already on the current path is treated as an empty branch so cycles terminate.
func (m *exportMapping) traverse(rootID string) []Message {
	type frame struct {
		id    string
		leave bool
	}

	var out []Message
	onPath := make(map[string]struct{})
	stack := []frame{{id: rootID}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.leave {
			delete(onPath, f.id)
			continue
		}
		if _, ok := onPath[f.id]; ok {
			continue
		}
		n := m.node(f.id)
		if n == nil {
			continue
		}

		if msg, ok := extractMessage(n.message); ok {
			out = append(out, msg)
		}

		onPath[f.id] = struct{}{}
		stack = append(stack, frame{id: f.id, leave: true})
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: n.children[i]})
		}
	}
	return out
}

// extractMessage returns the message carried by a node, if it has a user/assistant author and non-empty parts.
func extractMessage(raw json.RawMessage) (Message, bool) {
	if !jsonTruthy(raw) || jsonKind(raw) != '{' {
		return Message{}, false
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}

	role := ""
	if author := objectField(msg["author"], "role"); author != nil {
		_ = json.Unmarshal(author, &role)
	}
	if role != "user" && role != "assistant" {
		return Message{}, false
	}

	parts := objectField(msg["content"], "parts")
	if !jsonTruthy(parts) {
		return Message{}, false
	}

	var text string
	if jsonKind(parts) == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(parts, &items); err != nil {
			return Message{}, false
		}
		strs := make([]string, 0, len(items))
		for _, item := range items {
			strs = append(strs, partText(item))
		}
		text = strings.Join(strs, " ")
	} else {
		text = jsonString(parts)
	}

	return Message{Role: role, Text: strings.TrimFunc(text, isSpace)}, true
}

// partText renders one element of content.parts. Objects contribute their "text" field when present.
func partText(raw json.RawMessage) string {
	if jsonKind(raw) == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err == nil {
			if t, ok := obj["text"]; ok {
				return jsonString(t)
			}
		}
	}
	return jsonString(raw)
}

// jsonString returns the string value of a JSON string, or the compact JSON text of anything else.
func jsonString(raw json.RawMessage) string {
	if jsonKind(raw) == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}

// objectField returns obj[key] when obj is a JSON object, else nil.
func objectField(obj json.RawMessage, key string) json.RawMessage {
	if jsonKind(obj) != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil
	}
	return fields[key]
}

// jsonKind returns the first significant byte of a JSON value ('{', '[', '"', 'n', 't', 'f', or a digit/'-'),
// or 0 for an empty value.
func jsonKind(raw json.RawMessage) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// jsonTruthy reports whether a JSON value is non-empty: not null, false, 0, "", [] or {}.
func jsonTruthy(raw json.RawMessage) bool {
	switch jsonKind(raw) {
	case 0, 'n', 'f':
		return false
	case 't':
		return true
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s != ""
	case '[':
		var items []json.RawMessage
		return json.Unmarshal(raw, &items) == nil && len(items) > 0
	case '{':
		var fields map[string]json.RawMessage
		return json.Unmarshal(raw, &fields) == nil && len(fields) > 0
	default:
		v, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		return err == nil && v != 0
	}
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive (string/number/bool/null): already fully consumed.
		return nil
	}

	switch d {
	case '{', '[':
		// Consume tokens until the matching closing delimiter.
	default:
		// '}' or ']' shouldn't appear as a value token.
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
