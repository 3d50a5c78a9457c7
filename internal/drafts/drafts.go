package drafts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidKey = errors.New("draft key cannot be empty")

// Draft is the unsent text of one conversation
type Draft struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists drafts across navigation and restarts. Saving empty
// content deletes the draft; loading a missing draft returns "" and no
// error.
type Store interface {
	Load(key string) (string, error)
	Save(key, content string) error
	Delete(key string) error
	Close() error
}

type StoreType string

const (
	Memory   StoreType = "memory"
	Pebble   StoreType = "pebble"
	Postgres StoreType = "postgres"
)

// NewStore opens a draft store. dsn is a directory for pebble and a
// connection string for postgres; it is ignored for memory.
func NewStore(storeType StoreType, dsn string) (Store, error) {
	switch storeType {
	case Memory, "":
		return NewMemoryStore(), nil
	case Pebble:
		s, err := NewPebbleStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Postgres:
		s, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported draft store: %s", storeType)
	}
}

// Key scopes a draft to the signed-in user and the conversation peer.
func Key(userID, peerID string) string {
	return userID + ":" + peerID
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
