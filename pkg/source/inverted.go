package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Posting is one word of an inverted-index abstract and the positions it
// occupies.
type Posting struct {
	Word      string
	Positions []int
}

// InvertedIndex is an abstract encoded as word -> positions. Postings keep
// the order the provider sent them in, so equal positions resolve the same
// way on every decode.
type InvertedIndex []Posting

func (ix *InvertedIndex) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ix = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("inverted index must be an object, got %v", tok)
	}

	var out InvertedIndex
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		word, ok := tok.(string)
		if !ok {
			return fmt.Errorf("inverted index key must be a string, got %v", tok)
		}
		var positions []int
		if err := dec.Decode(&positions); err != nil {
			return fmt.Errorf("positions for %q: %w", word, err)
		}
		out = append(out, Posting{Word: word, Positions: positions})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*ix = out
	return nil
}

// Text rebuilds the plain abstract: words are laid out by ascending
// position and joined with single spaces.
func (ix InvertedIndex) Text() string {
	type placed struct {
		pos  int
		word string
	}

	var words []placed
	for _, p := range ix {
		for _, pos := range p.Positions {
			words = append(words, placed{pos: pos, word: p.Word})
		}
	}
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].pos < words[j].pos
	})

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}
