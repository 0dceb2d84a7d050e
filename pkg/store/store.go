// Package store keeps the most recent fetch result per username in an
// embedded buntdb database. Each new search for a username replaces
// its previous result set.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"igvault/pkg/logger"
	"igvault/pkg/media"
)

// Result kinds.
const (
	KindStories = "stories"
	KindPosts   = "posts"
)

const keyPrefix = "result:"

// ResultSet is one fetch result for a username.
type ResultSet struct {
	Username  string        `json:"username"`
	Kind      string        `json:"kind"`
	Profile   media.Profile `json:"profile"`
	Items     []media.Item  `json:"items"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Store is a buntdb-backed result store.
type Store struct {
	db     *buntdb.DB
	logger logger.Logger
}

// Open opens (or creates) the database at path. Pass ":memory:" for an
// in-memory store.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.CreateIndex("fetched_at", keyPrefix+"*", buntdb.IndexJSON("fetched_at"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// Put stores a result set, replacing any previous one for the same
// username.
func (s *Store) Put(rs *ResultSet) error {
	if rs == nil || rs.Username == "" {
		return fmt.Errorf("result set must have a username")
	}
	if rs.FetchedAt.IsZero() {
		rs.FetchedAt = time.Now()
	}

	buf, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal result set: %w", err)
	}

	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+rs.Username, string(buf), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store result set: %w", err)
	}

	s.logger.DebugWithFields("stored result set", map[string]interface{}{
		"username": rs.Username,
		"kind":     rs.Kind,
		"items":    len(rs.Items),
	})

	return nil
}

// Get returns the stored result set for a username, or nil when none
// exists.
func (s *Store) Get(username string) (*ResultSet, error) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(keyPrefix + username)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result set: %w", err)
	}

	var rs ResultSet
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, fmt.Errorf("failed to parse result set: %w", err)
	}

	return &rs, nil
}

// Latest returns up to count result sets, most recently fetched first.
func (s *Store) Latest(count int) ([]*ResultSet, error) {
	if count <= 0 {
		return nil, nil
	}

	var results []*ResultSet
	err := s.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		tx.Descend("fetched_at", func(key, value string) bool {
			var rs ResultSet
			if err := json.Unmarshal([]byte(value), &rs); err != nil {
				innerErr = fmt.Errorf("failed to parse result set: %w", err)
				return false
			}
			results = append(results, &rs)
			return len(results) < count
		})
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// Delete removes the result set for a username. Deleting a missing
// username is not an error.
func (s *Store) Delete(username string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(keyPrefix + username)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete result set: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
