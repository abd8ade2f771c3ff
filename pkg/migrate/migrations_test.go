package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEmbedded(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fsGlob(suffix)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, got %d", suffix, len(matches))
	}
	data, err := embedded.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}

func fsGlob(suffix string) ([]string, error) {
	entries, err := embedded.ReadDir(EmbeddedDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, EmbeddedDir+"/"+e.Name())
		}
	}
	return out, nil
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readEmbedded(t, "_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"FOREIGN KEY (beat_id) REFERENCES beats(id) ON DELETE RESTRICT",
		"CREATE UNIQUE INDEX IF NOT EXISTS orders_stripe_session_id_key",
		"'pending',",
		"'failed'",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBeatsMigrationContainsConstraints(t *testing.T) {
	content := readEmbedded(t, "_create_beats.sql")

	checks := []string{
		"CHECK (bpm BETWEEN 60 AND 200)",
		"producer text NOT NULL DEFAULT 'Heard Music'",
		"mp3_price_cents bigint NOT NULL DEFAULT 4500",
		"is_sold boolean NOT NULL DEFAULT false",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected filename error")
	}
}

func TestValidateDirRejectsMissingDown(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_things.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected missing down marker error")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	path, err := createAt(dir, "Add Beat Tags!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260301090000_add_beat_tags.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := createAt(dir, "add beat tags", now); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestSanitizeName(t *testing.T) {
	for in, want := range map[string]string{
		"Add Beat Tags!":     "add_beat_tags",
		"  orders--index  ":  "orders_index",
		"already_snake_case": "already_snake_case",
		"***":                "",
	} {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSourceFS(t *testing.T) {
	if _, err := sourceFS(""); err == nil {
		t.Fatal("empty dir should be rejected")
	}
	fsys, err := sourceFS(EmbeddedDir)
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if err := validateFS(fsys, "."); err != nil {
		t.Fatalf("embedded source should hold valid migrations at its root: %v", err)
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil, EmbeddedDir, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateDirAcceptsMigrationsOnDisk(t *testing.T) {
	entries, err := embedded.ReadDir(EmbeddedDir)
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	dir := t.TempDir()
	for _, e := range entries {
		data, err := embedded.ReadFile(EmbeddedDir + "/" + e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", e.Name(), err)
		}
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("on-disk copy of the embedded migrations should validate: %v", err)
	}
	if err := ValidateDir(filepath.Join(dir, "..", filepath.Base(dir))); err != nil {
		t.Fatalf("unclean path should validate: %v", err)
	}
}
