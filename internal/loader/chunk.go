package loader

import (
	"regexp"
	"strings"
)

var paragraphRegex = regexp.MustCompile(`\n\n+`)

// splitText chunks text on paragraph boundaries with overlap between
// consecutive chunks. Deterministic for identical input: chunk boundaries
// feed into stable-id positions.
func splitText(text string, maxSize, overlap, minSize int) []string {
	paragraphs := paragraphRegex.Split(text, -1)

	var chunks []string
	current := new(strings.Builder)
	currentSize := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
		current = new(strings.Builder)
		currentSize = 0
		if overlap > 0 {
			prev := chunks[len(chunks)-1]
			tail := overlapTail(prev, overlap)
			if tail != "" {
				current.WriteString(tail)
				currentSize = len(tail)
			}
		}
	}

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		// A single paragraph bigger than maxSize is split hard on word
		// boundaries first.
		for _, piece := range splitLongParagraph(paragraph, maxSize) {
			if currentSize+len(piece) > maxSize && currentSize >= minSize {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
				currentSize += 2
			}
			current.WriteString(piece)
			currentSize += len(piece)
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// overlapTail returns up to n trailing bytes of text, starting at a word
// boundary so chunks never begin mid-word.
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

func splitLongParagraph(paragraph string, maxSize int) []string {
	if maxSize <= 0 || len(paragraph) <= maxSize {
		return []string{paragraph}
	}
	var pieces []string
	for len(paragraph) > maxSize {
		cut := maxSize
		if idx := strings.LastIndex(paragraph[:maxSize], " "); idx > 0 {
			cut = idx
		}
		pieces = append(pieces, strings.TrimSpace(paragraph[:cut]))
		paragraph = strings.TrimSpace(paragraph[cut:])
	}
	if paragraph != "" {
		pieces = append(pieces, paragraph)
	}
	return pieces
}
