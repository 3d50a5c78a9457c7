package drafts

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const createDraftsTable = `
CREATE TABLE IF NOT EXISTS drafts (
	key        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore shares drafts between devices of the same user through a
// postgres database.
type PostgresStore struct {
	*sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(createDraftsTable); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db}, nil
}

func (db *PostgresStore) Load(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}

	var content string
	err := db.QueryRow("SELECT content FROM drafts WHERE key = $1", key).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (db *PostgresStore) Save(key, content string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return db.Delete(key)
	}

	_, err := db.Exec(`
		INSERT INTO drafts (key, content, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		key, content, time.Now().UTC())
	return err
}

func (db *PostgresStore) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := db.Exec("DELETE FROM drafts WHERE key = $1", key)
	return err
}
