package persistence

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the ViewRepository.
type badgerRepository struct {
	db      *badger.DB
	viewKey []byte
}

// NewBadgerRepository opens (or creates) the local cache database at dbPath.
func NewBadgerRepository(dbPath string) (ViewRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy and interleaves badly with ours; errors
	// still surface through the returned values.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:      db,
		viewKey: []byte("dashboard_view"),
	}, nil
}

// SaveView marshals the view to JSON and replaces the single cached entry.
func (r *badgerRepository) SaveView(view *CachedView) error {
	if view.SavedAt == 0 {
		view.SavedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.viewKey, data)
	})
}

// LoadView loads the cached view, returning (nil, nil) when the key is absent.
func (r *badgerRepository) LoadView() (*CachedView, error) {
	var view CachedView

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.viewKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("cached view is empty in database")
			}
			return json.Unmarshal(val, &view)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // nothing cached yet, not an error
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Close gracefully closes the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
