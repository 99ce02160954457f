package source

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/net/html"

	"github.com/japaniel/yomikomi/pkg/analysis"
)

// Collection file names inside an .apkg archive, newest schema first.
var collectionNames = []string{"collection.anki21", "collection.anki2"}

// DeckParser reads notes from an Anki .apkg archive.
type DeckParser struct {
	Path string
	// Name overrides the deck name used for provenance; defaults to the file name without extension.
	Name string
	// TempDir receives the extracted collection; empty means os.TempDir().
	TempDir string
}

// NewDeckParser returns a parser for the archive at path.
func NewDeckParser(path string) *DeckParser {
	return &DeckParser{Path: path}
}

func (p *DeckParser) Provenance() string {
	name := p.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(p.Path), filepath.Ext(p.Path))
	}
	return "deck:" + name
}

// Open extracts the embedded collection and starts a query over its notes.
func (p *DeckParser) Open(ctx context.Context) (Stream, error) {
	if err := checkExtension(p.Path, ".apkg", ".colpkg"); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(p.Path)
	if err != nil {
		return nil, unavailable("open deck %s: %v", filepath.Base(p.Path), err)
	}
	defer zr.Close()

	entry := findCollection(&zr.Reader)
	if entry == nil {
		return nil, unavailable("deck %s has no collection.anki2 or collection.anki21", filepath.Base(p.Path))
	}

	tmpPath, err := extractTemp(entry, p.TempDir)
	if err != nil {
		return nil, unavailable("extract %s: %v", entry.Name, err)
	}

	conn, err := sql.Open("sqlite3", "file:"+tmpPath+"?mode=ro")
	if err != nil {
		os.Remove(tmpPath)
		return nil, unavailable("open collection: %v", err)
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, flds, tags FROM notes ORDER BY id`)
	if err != nil {
		conn.Close()
		os.Remove(tmpPath)
		return nil, unavailable("deck %s: read notes: %v", filepath.Base(p.Path), err)
	}
	return &deckStream{conn: conn, rows: rows, tmpPath: tmpPath}, nil
}

// CountNotes returns the number of notes in the archive without reading them.
func (p *DeckParser) CountNotes(ctx context.Context) (int, error) {
	s, err := p.Open(ctx)
	if err != nil {
		return 0, err
	}
	ds := s.(*deckStream)
	defer ds.Close()
	var n int
	if err := ds.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

func findCollection(zr *zip.Reader) *zip.File {
	for _, name := range collectionNames {
		for _, f := range zr.File {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

func extractTemp(f *zip.File, dir string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, "deck-*.sqlite")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

type deckStream struct {
	conn    *sql.DB
	rows    *sql.Rows
	tmpPath string
}

func (s *deckStream) Next() (RawTuple, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return RawTuple{}, err
		}
		return RawTuple{}, io.EOF
	}
	var id int64
	var flds, tags string
	if err := s.rows.Scan(&id, &flds, &tags); err != nil {
		return RawTuple{}, err
	}
	ref := fmt.Sprintf("note %d", id)

	fields := strings.Split(flds, "\x1f")
	for i := range fields {
		fields[i] = CleanField(fields[i])
	}
	src, tgt := classifyFields(fields)
	if src == "" {
		return RawTuple{}, recordErrorf(ref, "no field with Japanese text")
	}
	if tgt == "" {
		return RawTuple{}, recordErrorf(ref, "no translation field")
	}

	var category string
	if t := strings.Fields(tags); len(t) > 0 {
		category = t[0]
	}
	return RawTuple{SourceText: src, TargetText: tgt, Category: category, Ref: ref}, nil
}

func (s *deckStream) Close() error {
	err := errors.Join(s.rows.Close(), s.conn.Close())
	if rmErr := os.Remove(s.tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// classifyFields picks the first field containing kana or kanji as the
// sentence and the first other field with letters but no Japanese script as
// its translation. Field order in the note type is not trusted.
func classifyFields(fields []string) (src, tgt string) {
	srcIdx := -1
	for i, f := range fields {
		if analysis.ContainsJapanese(f) {
			srcIdx = i
			src = f
			break
		}
	}
	if srcIdx < 0 {
		return "", ""
	}
	for i, f := range fields {
		if i == srcIdx || f == "" || analysis.ContainsJapanese(f) {
			continue
		}
		if strings.IndexFunc(f, unicode.IsLetter) >= 0 {
			return src, f
		}
	}
	return src, ""
}

var (
	reSound = regexp.MustCompile(`\[sound:[^\]]*\]`)
	// Anki furigana syntax: " 漢字[かんじ]" renders as the kanji alone.
	reFurigana = regexp.MustCompile(` ?([^\s\[\]]*)\[[\p{Hiragana}\p{Katakana}ー]+\]`)
)

// CleanField turns an Anki field into plain text: ruby readings and markup
// removed, entities decoded, sound references dropped, whitespace collapsed.
func CleanField(field string) string {
	if field == "" {
		return ""
	}
	field = string(analysis.SanitizeRuby([]byte(field)))
	field = reSound.ReplaceAllString(field, "")

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(field))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "br", "div", "p", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "div", "p", "li":
				b.WriteByte(' ')
			}
		}
	}

	text := reFurigana.ReplaceAllString(b.String(), "$1")
	return strings.Join(strings.Fields(text), " ")
}
