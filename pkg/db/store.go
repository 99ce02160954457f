package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrDuplicate is reported for a record whose fingerprint is already stored.
var ErrDuplicate = errors.New("fingerprint already stored")

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// Store is the sentence persistence boundary used by the import pipeline.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an initialized connection.
func NewStore(conn *sql.DB) *Store {
	return &Store{DB: conn}
}

// FingerprintExists reports whether a sentence with the fingerprint is stored.
func (s *Store) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	return FingerprintExists(ctx, s.DB, fingerprint)
}

// InsertBatch stores sentences in one transaction. See InsertBatch.
func (s *Store) InsertBatch(ctx context.Context, sentences []Sentence) (BatchResult, error) {
	return InsertBatch(ctx, s.DB, sentences)
}

// Summary returns aggregate counts over the stored content.
func (s *Store) Summary(ctx context.Context) (ContentSummary, error) {
	return GetContentSummary(ctx, s.DB)
}

// Sources lists stored provenance values with their counts.
func (s *Store) Sources(ctx context.Context) ([]SourceCount, error) {
	return ListSources(ctx, s.DB)
}

// DeactivateSource soft-deletes every sentence imported from source.
func (s *Store) DeactivateSource(ctx context.Context, source string) (int64, error) {
	return DeactivateSource(ctx, s.DB, source)
}

// FingerprintExists reports whether a sentence with the fingerprint is stored.
func FingerprintExists(ctx context.Context, db DBExecutor, fingerprint string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM sentences WHERE fingerprint = ? LIMIT 1`, fingerprint).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("lookup fingerprint: %w", err)
}

// InsertBatch inserts the sentences inside a single transaction.
// A record that violates a constraint is reported in BatchResult.Failed and does not
// prevent the others from being stored; unique fingerprint violations wrap ErrDuplicate.
// A non-nil error means the transaction itself failed and nothing from this batch was stored.
func InsertBatch(ctx context.Context, conn *sql.DB, sentences []Sentence) (BatchResult, error) {
	var res BatchResult
	if len(sentences) == 0 {
		return res, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return BatchResult{}, fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sentences
		(uuid, source_text, target_text, reading, romanization, proficiency_level, difficulty_score,
		 category, source, source_ref, is_active, study_count, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`)
	if err != nil {
		return BatchResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		id := s.UUID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := stmt.ExecContext(ctx,
			id, s.SourceText, s.TargetText,
			nullString(s.Reading), nullString(s.Romanization),
			nullInt(s.ProficiencyLevel), nullInt(s.DifficultyScore),
			nullString(s.Category), s.Source, nullString(s.SourceRef),
			s.Fingerprint, now,
		)
		if err != nil {
			if ctx.Err() != nil {
				return BatchResult{}, ctx.Err()
			}
			if isUniqueConstraintErr(err) && strings.Contains(err.Error(), "fingerprint") {
				err = fmt.Errorf("%w: %v", ErrDuplicate, err)
			}
			res.Failed = append(res.Failed, RecordFailure{Index: i, Err: err})
			continue
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("commit batch (%d items): %w", len(sentences), err)
	}
	return res, nil
}

// GetContentSummary returns totals, distinct sources and the level distribution of active content.
func GetContentSummary(ctx context.Context, db DBExecutor) (ContentSummary, error) {
	out := ContentSummary{
		LevelDistribution: make(map[int]int),
		CategoryCounts:    make(map[string]int),
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(is_active), 0), COUNT(DISTINCT source) FROM sentences`).
		Scan(&out.Total, &out.Active, &out.Sources)
	if err != nil {
		return ContentSummary{}, fmt.Errorf("count sentences: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT proficiency_level, COUNT(*) FROM sentences
		WHERE is_active = 1 AND proficiency_level IS NOT NULL GROUP BY proficiency_level`)
	if err != nil {
		return ContentSummary{}, fmt.Errorf("level distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level, n int
		if err := rows.Scan(&level, &n); err != nil {
			return ContentSummary{}, err
		}
		out.LevelDistribution[level] = n
	}
	if err := rows.Err(); err != nil {
		return ContentSummary{}, err
	}

	crows, err := db.QueryContext(ctx, `SELECT category, COUNT(*) FROM sentences
		WHERE is_active = 1 AND category IS NOT NULL AND category != '' GROUP BY category`)
	if err != nil {
		return ContentSummary{}, fmt.Errorf("category counts: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var cat string
		var n int
		if err := crows.Scan(&cat, &n); err != nil {
			return ContentSummary{}, err
		}
		out.CategoryCounts[cat] = n
	}
	return out, crows.Err()
}

// ListSources returns every provenance value with its total and active counts, ordered by name.
func ListSources(ctx context.Context, db DBExecutor) ([]SourceCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT source, COUNT(*), COALESCE(SUM(is_active), 0)
		FROM sentences GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Total, &sc.Active); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeactivateSource marks all sentences from source inactive and returns how many changed.
// Rows are never deleted so fingerprints keep blocking re-imports.
func DeactivateSource(ctx context.Context, db DBExecutor, source string) (int64, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, fmt.Errorf("source must be non-empty")
	}
	res, err := db.ExecContext(ctx, `UPDATE sentences SET is_active = 0 WHERE source = ? AND is_active = 1`, source)
	if err != nil {
		return 0, fmt.Errorf("deactivate source %s: %w", source, err)
	}
	return res.RowsAffected()
}

// GetSentenceByFingerprint loads one stored sentence.
func GetSentenceByFingerprint(ctx context.Context, db DBExecutor, fingerprint string) (Sentence, error) {
	var s Sentence
	var reading, romaji, category, ref sql.NullString
	var level, difficulty sql.NullInt64
	var active int
	err := db.QueryRowContext(ctx, `SELECT id, uuid, source_text, target_text, reading, romanization,
		proficiency_level, difficulty_score, category, source, source_ref, is_active, study_count,
		fingerprint, created_at FROM sentences WHERE fingerprint = ?`, fingerprint).Scan(
		&s.ID, &s.UUID, &s.SourceText, &s.TargetText, &reading, &romaji,
		&level, &difficulty, &category, &s.Source, &ref, &active, &s.StudyCount,
		&s.Fingerprint, &s.CreatedAt,
	)
	if err != nil {
		return Sentence{}, err
	}
	s.Reading = fromNullString(reading)
	s.Romanization = fromNullString(romaji)
	s.Category = fromNullString(category)
	s.SourceRef = fromNullString(ref)
	s.ProficiencyLevel = fromNullInt(level)
	s.DifficultyScore = fromNullInt(difficulty)
	s.IsActive = active == 1
	return s, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
