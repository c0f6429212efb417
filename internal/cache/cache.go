// Package cache stores encoded scan output in SQLite, keyed by a fingerprint
// of the scan request and the files it reads.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Key identifies a scan request independently of the files it reads.
type Key struct {
	Descriptor  string
	Project     string
	Targets     []string
	Kinds       []string
	SimpleNames bool
	Format      string
	// MaxFileSize decides which inputs end up skipped, so it is part of the key.
	MaxFileSize int64
	Version     string
}

func (k Key) hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "descriptor=%s\nproject=%s\ntargets=%s\nkinds=%s\nsimple=%t\nformat=%s\nmaxsize=%d\nversion=%s\n",
		k.Descriptor, k.Project,
		strings.Join(k.Targets, ","), strings.Join(k.Kinds, ","),
		k.SimpleNames, k.Format, k.MaxFileSize, k.Version)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint combines the key with the path, size and modification time of
// every input file (relative to root). Any change to an input yields a new
// fingerprint.
func Fingerprint(root string, key Key, inputs []string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", key.hash())
	for _, rel := range inputs {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", errors.Errorf("stat %s: %w", rel, err)
		}
		fmt.Fprintf(h, "%s\t%d\t%d\n", rel, fi.Size(), fi.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Store is an open result cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, errors.Errorf("cache: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Errorf("cache: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("cache: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS results (
			key_hash    TEXT NOT NULL PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			output      BLOB NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the output stored for key if it was produced from inputs with
// the given fingerprint.
func (s *Store) Get(ctx context.Context, key Key, fingerprint string) ([]byte, bool, error) {
	var output []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT output FROM results WHERE key_hash = ? AND fingerprint = ?`,
		key.hash(), fingerprint,
	).Scan(&output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Errorf("cache: get: %w", err)
	}
	return output, true, nil
}

// Put stores output for key, replacing whatever an older fingerprint left.
func (s *Store) Put(ctx context.Context, key Key, fingerprint string, output []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (key_hash, fingerprint, output) VALUES (?, ?, ?)
		 ON CONFLICT(key_hash) DO UPDATE SET
		   fingerprint = excluded.fingerprint,
		   output      = excluded.output,
		   created_at  = datetime('now')`,
		key.hash(), fingerprint, output,
	)
	if err != nil {
		return errors.Errorf("cache: put: %w", err)
	}
	return nil
}

// Len returns the number of stored results.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, errors.Errorf("cache: count: %w", err)
	}
	return n, nil
}
