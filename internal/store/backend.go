package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Backend reads and writes the follow-up document as a whole. Read returns
// nil, nil when no document has been written yet.
type Backend interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// Stamper is implemented by backends that can cheaply report a marker that
// changes whenever the document is rewritten. An empty stamp means there is
// no document.
type Stamper interface {
	Stamp() (string, error)
}

// Preserver is implemented by backends that can set an unreadable document
// aside before it is overwritten. It returns where the copy went.
type Preserver interface {
	Preserve(data []byte, suffix string) (string, error)
}

// FileBackend keeps the document in a single JSON file.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Read() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

// Write replaces the file through a temp file and rename so a crash
// mid-write leaves the previous document intact.
func (b *FileBackend) Write(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("rename %s: %w", b.path, err)
	}
	return nil
}

// Stamp combines the file's modification time and size.
func (b *FileBackend) Stamp() (string, error) {
	info, err := os.Stat(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", b.path, err)
	}
	return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
}

// Preserve writes data next to the document as <file>.corrupt-<suffix>.
func (b *FileBackend) Preserve(data []byte, suffix string) (string, error) {
	dst := b.path + ".corrupt-" + suffix
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("preserve %s: %w", b.path, err)
	}
	return dst, nil
}

// SQLiteBackend keeps the document as one row of the documents table.
type SQLiteBackend struct {
	db   *sql.DB
	name string
}

func NewSQLiteBackend(db *sql.DB, name string) *SQLiteBackend {
	return &SQLiteBackend{db: db, name: name}
}

func (b *SQLiteBackend) Read() ([]byte, error) {
	var body string
	err := b.db.QueryRow(`SELECT body FROM documents WHERE name = ?`, b.name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %q: %w", b.name, err)
	}
	return []byte(body), nil
}

func (b *SQLiteBackend) Write(data []byte) error {
	return b.upsert(b.name, data)
}

func (b *SQLiteBackend) upsert(name string, data []byte) error {
	_, err := b.db.Exec(
		`INSERT INTO documents (name, body, revision) VALUES (?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, revision = documents.revision + 1, updated_at = CURRENT_TIMESTAMP`,
		name, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", name, err)
	}
	return nil
}

// Stamp returns the row's revision, which every write increments.
func (b *SQLiteBackend) Stamp() (string, error) {
	var revision int64
	err := b.db.QueryRow(`SELECT revision FROM documents WHERE name = ?`, b.name).Scan(&revision)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get document %q revision: %w", b.name, err)
	}
	return strconv.FormatInt(revision, 10), nil
}

// Preserve stores data as a sibling row named <name>.corrupt-<suffix>.
func (b *SQLiteBackend) Preserve(data []byte, suffix string) (string, error) {
	name := b.name + ".corrupt-" + suffix
	if err := b.upsert(name, data); err != nil {
		return "", err
	}
	return name, nil
}
