// Package dictionary provides JMdict readings used when the tokenizer does not
// know a word. Data comes from the jmdict-simplified JSON releases.
package dictionary

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Entry is the part of a jmdict-simplified word needed for readings.
// Senses are not decoded.
type Entry struct {
	ID    string     `json:"id"`
	Kanji []Spelling `json:"kanji"`
	Kana  []Spelling `json:"kana"`
}

type Spelling struct {
	Text   string `json:"text"`
	Common bool   `json:"common"`
	// AppliesToKanji restricts a kana spelling to some kanji spellings; "*" means all.
	AppliesToKanji []string `json:"appliesToKanji,omitempty"`
}

// Load reads every entry of a jmdict-simplified file. Both the release layout
// ({"version": ..., "words": [...]}) and a bare array of words are accepted.
func Load(path string) ([]Entry, error) {
	var entries []Entry
	err := walkFile(path, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// LoadIndex streams path straight into an Index.
func LoadIndex(path string) (*Index, error) {
	ix := NewIndex(nil)
	if err := walkFile(path, func(e Entry) error {
		ix.add(e)
		return nil
	}); err != nil {
		return nil, err
	}
	return ix, nil
}

func walkFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Walk(bufio.NewReaderSize(f, 1<<20), fn); err != nil {
		return fmt.Errorf("dictionary %s: %w", path, err)
	}
	return nil
}

// Walk decodes entries one at a time and passes them to fn. The whole word
// list is never held in memory.
func Walk(r io.Reader, fn func(Entry) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read start: %w", err)
	}
	switch tok {
	case json.Delim('['):
		return walkArray(dec, fn)
	case json.Delim('{'):
	default:
		return fmt.Errorf("unexpected top level %v", tok)
	}

	found := false
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return err
		}
		if key != "words" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skip %v: %w", key, err)
			}
			continue
		}
		if tok, err := dec.Token(); err != nil {
			return err
		} else if tok != json.Delim('[') {
			return errors.New(`"words" is not an array`)
		}
		if err := walkArray(dec, fn); err != nil {
			return err
		}
		found = true
	}
	if !found {
		return errors.New(`no "words" array`)
	}
	return nil
}

// walkArray decodes elements after the opening bracket through the closing one.
func walkArray(dec *json.Decoder, fn func(Entry) error) error {
	n := 0
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("word %d: %w", n+1, err)
		}
		n++
		if err := fn(e); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("after word %d: %w", n, err)
	}
	return nil
}
