package migration

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/theimaginaryfoundation/affect-extract/migration/fileutils"
)

// Transcript table column names.
const (
	ColConversation = "Conversation"
	ColMessage      = "Message"
	ColRole         = "Role"
	ColText         = "Text"
	ColCluster      = "Cluster"

	RoleUser = "USER"
)

// ErrMissingColumn is returned when a table lacks a column an operation needs.
var ErrMissingColumn = errors.New("missing column")

// TranscriptHeader is the header row of a transcript CSV.
func TranscriptHeader() []string {
	return []string{ColConversation, ColMessage, ColRole, ColText}
}

// Table is a CSV loaded with every column intact, so filtered subsets can be written back verbatim.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named column, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t Table) columns(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = t.Column(name)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}
	return idx, nil
}

// cell returns row[i], treating short rows as having empty trailing cells.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// TranscriptTable renders transcript rows under TranscriptHeader.
func TranscriptTable(rows []TranscriptRow) Table {
	t := Table{Header: TranscriptHeader(), Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Conversation),
			strconv.Itoa(r.Message),
			r.Role,
			r.Text,
		})
	}
	return t
}

// ReadTableCSV loads a CSV file whose first record is the header.
func ReadTableCSV(path string) (Table, error) {
	if path == "" {
		return Table{}, errors.New("ReadTableCSV: path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("ReadTableCSV: open: %w", err)
	}
	defer f.Close()

	t, err := DecodeTableCSV(f)
	if err != nil {
		return Table{}, fmt.Errorf("ReadTableCSV: %s: %w", path, err)
	}
	return t, nil
}

// DecodeTableCSV reads a header record followed by data records.
func DecodeTableCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("empty csv: no header row")
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read record: %w", err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// EncodeTableCSV writes the header and rows of t.
func EncodeTableCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteTableCSV writes t to path atomically. An existing file is an error unless overwrite is set.
func WriteTableCSV(path string, t Table, overwrite bool) error {
	if path == "" {
		return errors.New("WriteTableCSV: path is empty")
	}
	if err := fileutils.EnsureWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteTableCSV: %w", err)
	}

	var buf bytes.Buffer
	if err := EncodeTableCSV(&buf, t); err != nil {
		return fmt.Errorf("WriteTableCSV: encode: %w", err)
	}
	if err := fileutils.WriteFileAtomicSameDir(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("WriteTableCSV: write: %w", err)
	}
	return nil
}

// WriteTranscriptCSV writes transcript rows as a Conversation,Message,Role,Text CSV.
func WriteTranscriptCSV(path string, rows []TranscriptRow, overwrite bool) error {
	return WriteTableCSV(path, TranscriptTable(rows), overwrite)
}
