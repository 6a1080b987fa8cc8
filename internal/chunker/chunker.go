package chunker

import (
	"strings"
	"unicode"
)

// Piece is one bounded segment of a document's extracted text. Offsets are
// rune offsets into the original text so a chunk can always be traced back to
// its source span.
type Piece struct {
	Ordinal int
	Text    string
	Start   int
	End     int
}

// sentence-ending runes that qualify as a soft cut point. Covers latin and
// CJK full-width punctuation since documents are multilingual.
const sentenceEnders = ".!?。！？；;"

// Split cuts text into pieces of at most targetSize runes, consecutive pieces
// overlapping by roughly overlap runes. Cut points prefer a paragraph break,
// then a sentence end, before falling back to a hard cut at targetSize.
//
// Split is pure: identical input and parameters always yield the identical
// sequence, which keeps document re-ingestion idempotent.
func Split(text string, targetSize, overlap int) []Piece {
	if targetSize <= 0 {
		targetSize = 1000
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = 0
	}
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}
	if len(runes) <= targetSize {
		piece, ok := makePiece(runes, 0, len(runes), 0)
		if !ok {
			return nil
		}
		return []Piece{piece}
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + targetSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}
		if piece, ok := makePiece(runes, start, end, len(pieces)); ok {
			pieces = append(pieces, piece)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			// overlap would stall the walk; advance without it
			next = end
		}
		start = next
	}
	return pieces
}

// cutPoint finds the best split position in (start, limit]. A paragraph break
// in the back half of the window wins, then the last sentence end, then limit.
func cutPoint(runes []rune, start, limit int) int {
	floor := start + (limit-start)/2
	for i := limit - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := limit - 1; i > floor; i-- {
		if strings.ContainsRune(sentenceEnders, runes[i]) {
			return i + 1
		}
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return limit
}

// makePiece trims surrounding whitespace while keeping offsets anchored to
// the original text.
func makePiece(runes []rune, start, end, ordinal int) (Piece, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return Piece{}, false
	}
	return Piece{
		Ordinal: ordinal,
		Text:    string(runes[start:end]),
		Start:   start,
		End:     end,
	}, true
}
