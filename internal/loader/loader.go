// Package loader converts uploaded files into ordered text segments with
// source metadata. Unsupported file types yield zero segments.
package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Segment is the unit of ingested text handed to the vector store.
type Segment struct {
	Content  string
	Metadata map[string]any
}

// Options controls how oversized plain-text files are split.
type Options struct {
	MaxChunkSize int
	ChunkOverlap int
	MinChunkSize int
}

// LoadFile returns the ordered segments extracted from one file. Segment
// order is what stable ids are derived from, so it must be deterministic
// for identical content.
func LoadFile(path string, opts Options) ([]Segment, error) {
	var segments []Segment
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		segments, err = loadPDF(path)
	case ".txt", ".md":
		segments, err = loadText(path, opts)
	case ".csv":
		segments, err = loadCSV(path)
	case ".xlsx":
		segments, err = loadXLSX(path)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	for i := range segments {
		if segments[i].Metadata == nil {
			segments[i].Metadata = map[string]any{}
		}
		segments[i].Metadata["source"] = path
		segments[i].Metadata["filename"] = name
	}
	return segments, nil
}

func loadText(path string, opts Options) ([]Segment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}

	if opts.MaxChunkSize <= 0 || len(text) <= opts.MaxChunkSize {
		return []Segment{{Content: text}}, nil
	}

	parts := splitText(text, opts.MaxChunkSize, opts.ChunkOverlap, opts.MinChunkSize)
	segments := make([]Segment, 0, len(parts))
	for i, part := range parts {
		segments = append(segments, Segment{
			Content:  part,
			Metadata: map[string]any{"chunk": i},
		})
	}
	return segments, nil
}

// loadCSV emits one segment per data row, each row rendered as
// "header: value" lines so column meaning survives embedding.
func loadCSV(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return rowsToSegments(records), nil
}

func rowsToSegments(rows [][]string) []Segment {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	segments := make([]Segment, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		var b strings.Builder
		for col, value := range row {
			name := fmt.Sprintf("column%d", col+1)
			if col < len(header) && strings.TrimSpace(header[col]) != "" {
				name = strings.TrimSpace(header[col])
			}
			if col > 0 {
				b.WriteString("\n")
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(value))
		}
		content := strings.TrimSpace(b.String())
		if content == "" {
			continue
		}
		segments = append(segments, Segment{
			Content:  content,
			Metadata: map[string]any{"row": rowIdx + 1},
		})
	}
	return segments
}
