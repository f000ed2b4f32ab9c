package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"coherence/internal/resolve"
)

// keySep separates the tracked key from the source ID in Badger keys.
// Tracked keys must not contain a NUL byte.
const keySep = "\x00"

var versionPrefix = []byte("ver" + keySep)

// versionRecord is the msgpack wire form of a stored version.
type versionRecord struct {
	SourceID  string    `msgpack:"source_id"`
	Version   uint64    `msgpack:"version"`
	Timestamp time.Time `msgpack:"timestamp"`
	Data      []byte    `msgpack:"data"`
}

// BadgerStore is a durable VersionStore backed by Badger. Each (key, source)
// slot lives under its own Badger key so Versions is a prefix scan.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger-backed version store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Append records an observed version for the key's source slot.
func (s *BadgerStore) Append(key string, tag resolve.VersionTag) error {
	bk := slotKey(key, tag.SourceID)

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(bk)
		if err == nil {
			var existing versionRecord
			verr := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &existing)
			})
			if verr != nil {
				return fmt.Errorf("decode existing version for %s: %w", key, verr)
			}
			if existing.Version > tag.Version {
				return nil // stale observation
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		val, err := msgpack.Marshal(toRecord(tag))
		if err != nil {
			return fmt.Errorf("encode version for %s: %w", key, err)
		}
		return txn.Set(bk, val)
	})
}

// Versions returns the latest observed version per source for key.
func (s *BadgerStore) Versions(key string) ([]resolve.VersionTag, error) {
	prefix := keyPrefix(key)
	var out []resolve.VersionTag

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec versionRecord
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode version for %s: %w", key, err)
			}
			out = append(out, fromRecord(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []resolve.VersionTag{}
	}
	return out, nil
}

// Reset replaces the key's version set in a single transaction.
func (s *BadgerStore) Reset(key string, tags ...resolve.VersionTag) error {
	prefix := keyPrefix(key)

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, bk := range stale {
			if err := txn.Delete(bk); err != nil {
				return err
			}
		}

		for _, tag := range tags {
			val, err := msgpack.Marshal(toRecord(tag))
			if err != nil {
				return fmt.Errorf("encode version for %s: %w", key, err)
			}
			if err := txn.Set(slotKey(key, tag.SourceID), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func slotKey(key, sourceID string) []byte {
	return append(keyPrefix(key), []byte(sourceID)...)
}

func keyPrefix(key string) []byte {
	bk := make([]byte, 0, len(versionPrefix)+len(key)+1)
	bk = append(bk, versionPrefix...)
	bk = append(bk, key...)
	bk = append(bk, keySep...)
	return bk
}

func toRecord(tag resolve.VersionTag) versionRecord {
	return versionRecord{
		SourceID:  tag.SourceID,
		Version:   tag.Version,
		Timestamp: tag.Timestamp,
		Data:      tag.Data,
	}
}

func fromRecord(rec versionRecord) resolve.VersionTag {
	return resolve.VersionTag{
		SourceID:  rec.SourceID,
		Version:   rec.Version,
		Timestamp: rec.Timestamp,
		Data:      rec.Data,
	}
}
