package drafts

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

const pebblePrefix = "draft:"

// PebbleStore keeps drafts in a local pebble database, the default for the
// terminal client.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, errors.New("pebble draft store needs a directory")
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}

	v, closer, err := s.db.Get([]byte(pebblePrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer closer.Close()

	var d Draft
	if err := json.Unmarshal(v, &d); err != nil {
		return "", err
	}
	return d.Content, nil
}

func (s *PebbleStore) Save(key, content string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return s.Delete(key)
	}

	data, err := json.Marshal(Draft{Key: key, Content: content, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Set([]byte(pebblePrefix+key), data, pebble.Sync)
}

func (s *PebbleStore) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.db.Delete([]byte(pebblePrefix+key), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
