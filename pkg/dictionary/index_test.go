package dictionary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDict = `
{
  "version": "3.6.1",
  "languages": ["eng"],
  "tags": {"n": "noun (common) (futsuumeishi)"},
  "words": [
    {
      "id": "1",
      "kanji": [{"text": "犬", "common": true, "tags": []}],
      "kana": [{"text": "いぬ", "common": true, "appliesToKanji": ["*"]}],
      "sense": [{"gloss": [{"lang": "eng", "text": "dog"}], "partOfSpeech": ["n"]}]
    },
    {
      "id": "2",
      "kanji": [{"text": "走る", "common": true}],
      "kana": [{"text": "はしる", "common": true}],
      "sense": [{"gloss": [{"text": "to run"}], "partOfSpeech": ["v5r"]}]
    },
    {
      "id": "3",
      "kanji": [{"text": "猫", "common": true}],
      "kana": [{"text": "ネコ", "common": false}, {"text": "ねこ", "common": true}],
      "sense": [{"gloss": [{"text": "cat"}], "partOfSpeech": ["n"]}]
    },
    {
      "id": "4",
      "kanji": [],
      "kana": [{"text": "テスト", "common": true}],
      "sense": [{"gloss": [{"text": "test"}], "partOfSpeech": ["n", "vs"]}]
    },
    {
      "id": "5",
      "kanji": [{"text": "日本", "common": true}, {"text": "日本国", "common": false}],
      "kana": [
        {"text": "にっぽんこく", "common": false, "appliesToKanji": ["日本国"]},
        {"text": "にほん", "common": true, "appliesToKanji": ["日本"]}
      ],
      "sense": []
    }
  ]
}
`

func writeDict(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jmdict.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	entries, err := Load(writeDict(t, testDict))
	if err != nil {
		t.Fatalf("load dict: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[2].ID != "3" || len(entries[2].Kana) != 2 {
		t.Fatalf("unexpected entry: %+v", entries[2])
	}

	bare := `[{"id": "1", "kanji": [{"text": "犬"}], "kana": [{"text": "いぬ"}]}]`
	entries, err = Load(writeDict(t, bare))
	if err != nil {
		t.Fatalf("load bare array: %v", err)
	}
	if len(entries) != 1 || entries[0].Kanji[0].Text != "犬" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"no words", `{"version": "1"}`, "no \"words\""},
		{"words not array", `{"words": {}}`, "not an array"},
		{"scalar", `42`, "unexpected top level"},
		{"truncated", `{"words": [{"id": "1"}, {"id": `, "word 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDict(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestIndexReading(t *testing.T) {
	ix, err := LoadIndex(writeDict(t, testDict))
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if ix.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", ix.Len())
	}

	tests := []struct {
		word string
		want string
		ok   bool
	}{
		{"犬", "いぬ", true},
		{"猫", "ねこ", true}, // common form wins
		{"走る", "はしる", true},
		{"日本", "にほん", true},
		{"日本国", "にっぽんこく", true},
		{"テスト", "", false},
		{"未知", "", false},
	}
	for _, tt := range tests {
		got, ok := ix.Reading(tt.word)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Reading(%q) = %q, %v; want %q, %v", tt.word, got, ok, tt.want, tt.ok)
		}
	}

	var nilIndex *Index
	if _, ok := nilIndex.Reading("犬"); ok {
		t.Fatalf("nil index must not report readings")
	}
}

func TestToHiragana(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"ア", "あ"},
		{"ガ", "が"},
		{"パ", "ぱ"},
		{"ン", "ん"},
		{"ー", "ー"},
		{"abc", "abc"},
		{"あいう", "あいう"},
	}
	for _, tt := range tests {
		if got := ToHiragana(tt.in); got != tt.out {
			t.Errorf("ToHiragana(%q) = %q; want %q", tt.in, got, tt.out)
		}
	}
}
