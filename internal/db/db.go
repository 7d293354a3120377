package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	_ "modernc.org/sqlite"
)

const defaultRig = "default"

type Config struct {
	DataDir string
	Rig     string
}

// SafeName reduces a rig id to the characters used for its database file
// name: letters, digits, dash, underscore. An empty result falls back to
// "default".
func SafeName(rig string) string {
	var b strings.Builder
	for _, r := range rig {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultRig
	}
	return b.String()
}

// Path returns the database file path for a rig.
func Path(dataDir, rig string) string {
	if dataDir == "" {
		dataDir = "data"
	}
	return filepath.Join(dataDir, SafeName(rig)+".db")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir(dataDir string) (string, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// Open opens one rig's SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.DataDir, cfg.Rig))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Stores hands out one cached connection per rig. Init runs once per rig
// when its database is first opened (callers pass migrate.Migrate).
type Stores struct {
	DataDir string
	Init    func(*sql.DB) error

	mu    sync.Mutex
	conns map[string]*sql.DB
}

func NewStores(dataDir string, init func(*sql.DB) error) *Stores {
	return &Stores{DataDir: dataDir, Init: init, conns: map[string]*sql.DB{}}
}

// Get returns the connection for a rig, opening and initializing it on
// first use.
func (s *Stores) Get(rig string) (*sql.DB, error) {
	key := SafeName(rig)
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}
	conn, err := Open(Config{DataDir: s.DataDir, Rig: key})
	if err != nil {
		return nil, err
	}
	if s.Init != nil {
		if err := s.Init(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("init rig %s: %w", key, err)
		}
	}
	s.conns[key] = conn
	return conn, nil
}

// Close closes every cached connection.
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for key, conn := range s.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.conns, key)
	}
	return firstErr
}

// DirRegistry lists rig ids by scanning the data directory for *.db files.
// "default" is always included even before its database exists.
type DirRegistry struct {
	Dir string
}

func (d DirRegistry) ListRigIDs() ([]string, error) {
	ids := map[string]bool{defaultRig: true}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{defaultRig}, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".db") {
			continue
		}
		ids[strings.TrimSuffix(name, ".db")] = true
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
