package ingest

import (
	"context"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/yomikomi/pkg/analysis"
	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/source"
)

func generateBenchmarkTuples(n int) *source.SliceParser {
	p := &source.SliceParser{Name: "bench"}
	for i := 0; i < n; i++ {
		p.Tuples = append(p.Tuples, source.RawTuple{
			SourceText: fmt.Sprintf("これはテスト文です%d", i),
			TargetText: fmt.Sprintf("This is test sentence %d.", i),
			Ref:        fmt.Sprintf("row %d", i+1),
		})
	}
	return p
}

func benchmarkImport(b *testing.B, workers int) {
	p := generateBenchmarkTuples(1000)
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		conn := setupDB(b)
		// Optimize SQLite for performance to focus on application throughput
		_, _ = conn.Exec("PRAGMA synchronous = OFF")
		_, _ = conn.Exec("PRAGMA journal_mode = MEMORY")
		o := New(db.NewStore(conn), analysis.New(nil))
		o.Config = Config{Workers: workers, BatchSize: 100}
		b.StartTimer()

		sum, err := o.Import(context.Background(), p)
		b.StopTimer()
		conn.Close()
		if err != nil {
			b.Fatalf("Import failed: %v", err)
		}
		if sum.Imported != len(p.Tuples) {
			b.Fatalf("expected %d imported, got %d", len(p.Tuples), sum.Imported)
		}
	}
}

func BenchmarkImport(b *testing.B) {
	benchmarkImport(b, 4)
}

func BenchmarkImportConcurrencyScaling(b *testing.B) {
	// On small datasets or in-memory DBs the worker overhead may outweigh the gain,
	// but this catches large regressions.
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			benchmarkImport(b, workers)
		})
	}
}
