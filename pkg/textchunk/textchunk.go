// Package textchunk splits long answers into pieces that a length-limited
// speech synthesizer accepts.
//
// Text is first broken at sentence terminators ('.', '?', '!') that are
// followed by whitespace or the end of the input. Sentences longer than
// [MaxLen] runes are then hard-cut into [MaxLen]-rune pieces; cuts may land
// mid-word.
package textchunk

import (
	"errors"
	"strings"
	"unicode"
)

// MaxLen is the maximum number of runes in a single chunk.
const MaxLen = 200

// ErrInvalidInput is returned by [Split] for empty or whitespace-only text.
var ErrInvalidInput = errors.New("textchunk: empty input")

// Split breaks text into ordered, non-empty chunks of at most [MaxLen] runes.
func Split(text string) ([]string, error) {
	return SplitN(text, MaxLen)
}

// SplitN is like [Split] with a custom maximum chunk length. A non-positive
// max falls back to [MaxLen].
func SplitN(text string, max int) ([]string, error) {
	if max <= 0 {
		max = MaxLen
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}

	var chunks []string
	for _, sentence := range sentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		chunks = append(chunks, hardCut(sentence, max)...)
	}
	if len(chunks) == 0 {
		return nil, ErrInvalidInput
	}
	return chunks, nil
}

// sentences returns the candidate sentences of s. The whitespace run that
// follows each terminator is dropped.
func sentences(s string) []string {
	var out []string
	runes := []rune(s)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		next := i + 1
		if next < len(runes) && !unicode.IsSpace(runes[next]) {
			continue
		}
		out = append(out, string(runes[start:next]))
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		start = next
		i = next - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

// hardCut splits s into fixed-size pieces of max runes. Pieces that are only
// whitespace are dropped.
func hardCut(s string, max int) []string {
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	pieces := make([]string, 0, (len(runes)+max-1)/max)
	for len(runes) > 0 {
		n := min(max, len(runes))
		if piece := string(runes[:n]); strings.TrimSpace(piece) != "" {
			pieces = append(pieces, piece)
		}
		runes = runes[n:]
	}
	return pieces
}
