// Package db opens the workspace-local SQLite database every command and
// server shares. State lives under a dot-directory next to the workspace so
// a checkout stays self-contained.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".bountyline"
	dbName   = "bountyline.db"
)

// Pragmas applied on every connection. Foreign keys are off by default in
// SQLite; busy_timeout keeps concurrent CLI and server processes from
// failing fast on the write lock.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the state directory under workspace if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure workspace: %w", err)
	}
	return dir, nil
}

// Path returns the database file path for the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, dbName)
}

func dsn(workspace string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(Path(workspace))
	b.WriteString("?cache=shared")
	for _, p := range pragmas {
		b.WriteString("&_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// Open opens the workspace database, creating the state directory first.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", dsn(cfg.Workspace))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
