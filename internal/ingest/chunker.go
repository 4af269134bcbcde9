package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxChunkChars bounds a chunk's length in runes, not bytes, so
// multibyte scripts pack as much content per chunk as ASCII. A single
// paragraph longer than this is emitted as its own oversized chunk,
// never split mid-paragraph.
const maxChunkChars = 1000

var blankLineRegex = regexp.MustCompile(`\n\s*\n`)

type Piece struct {
	PageNum    int
	Text       string
	AnchorPath string
	TokenCount int
}

// ChunkPages splits each page's text on blank-line boundaries and greedily
// accumulates paragraphs while the running chunk stays under maxChunkChars.
// Chunks never span pages. Whitespace-only chunks are dropped.
func ChunkPages(pages []PageText) []Piece {
	var pieces []Piece
	for _, page := range pages {
		pieces = append(pieces, chunkPage(page)...)
	}
	return pieces
}

func chunkPage(page PageText) []Piece {
	var pieces []Piece
	var current strings.Builder
	currentRunes := 0
	ordinal := 0

	emit := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		currentRunes = 0
		if text == "" {
			return
		}
		pieces = append(pieces, Piece{
			PageNum:    page.PageNum,
			Text:       text,
			AnchorPath: fmt.Sprintf("p%04d/c%02d", page.PageNum, ordinal),
			TokenCount: utf8.RuneCountInString(text) / 4,
		})
		ordinal++
	}

	for _, para := range blankLineRegex.Split(page.Text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraRunes := utf8.RuneCountInString(para)
		if currentRunes > 0 && currentRunes+2+paraRunes > maxChunkChars {
			emit()
		}
		if currentRunes > 0 {
			current.WriteString("\n\n")
			currentRunes += 2
		}
		current.WriteString(para)
		currentRunes += paraRunes
	}
	emit()
	return pieces
}
