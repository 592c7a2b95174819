package migrations

import "testing"

// TestSourceEnumeratesMigrations validates the embedded migration set parses
// without requiring a live database connection.
func TestSourceEnumeratesMigrations(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	entries, err := files.ReadDir("sql")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration file")
	}
	sawUp, sawDown := false, false
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			sawUp = true
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			sawDown = true
		}
	}
	if !sawUp || !sawDown {
		t.Fatalf("expected both up and down migrations, got %v", entries)
	}
}
