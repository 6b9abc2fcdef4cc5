package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"linemend/internal/storage"
)

func TestLoadCorrectedFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "corrected_x.csv")
	if err := os.WriteFile(src, []byte("Id;Commentaire\n1;avec retour\n2;\n3;fin\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: filepath.Join(dir, "out.db"), Table: "sinistres"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	if err := storage.EnsureTable(ctx, "sqlite", repo, "sinistres", []string{"id", "commentaire"}); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// Idempotent.
	if err := storage.EnsureTable(ctx, "sqlite", repo, "sinistres", []string{"id", "commentaire"}); err != nil {
		t.Fatalf("EnsureTable again: %v", err)
	}

	_, n, err := storage.LoadFile(ctx, repo, src, storage.LoadOptions{Delimiter: ';', BatchSize: 2})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}

	db := repo.(*Repository).db
	var count, nulls int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(commentaire IS NULL) FROM sinistres`).Scan(&count, &nulls); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 || nulls != 1 {
		t.Fatalf("count=%d nulls=%d, want 3 1", count, nulls)
	}
}

func TestCopyFromRowLengthMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, err := NewRepository(ctx, filepath.Join(t.TempDir(), "x.db"), "t")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer r.Close()
	if err := r.Exec(ctx, `CREATE TABLE t (a TEXT, b TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CopyFrom(ctx, []string{"a", "b"}, [][]any{{"1"}}); err == nil {
		t.Fatal("expected row length error")
	}
	if _, err := r.CopyFrom(ctx, nil, [][]any{{"1"}}); err == nil {
		t.Fatal("expected empty columns error")
	}
	if _, err := NewRepository(ctx, " ", "t"); err == nil {
		t.Fatal("expected empty DSN error")
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()
	got, err := CreateTableSQL("main.events", []string{"id", `we"ird`})
	if err != nil {
		t.Fatal(err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"main\".\"events\" (\n  \"id\" TEXT,\n  \"we\"\"ird\" TEXT\n);"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
	if _, err := CreateTableSQL("", []string{"a"}); err == nil || !strings.Contains(err.Error(), "table") {
		t.Fatalf("empty table err = %v", err)
	}
	if _, err := CreateTableSQL("t", nil); err == nil {
		t.Fatal("expected error for no columns")
	}
}
