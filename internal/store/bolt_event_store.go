package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

var (
	bucketEvents   = []byte("events")
	bucketEventIDs = []byte("event_ids")
)

// BoltEventStore is a bbolt-backed EventStore. Events are kept in a
// per-submission sub-bucket keyed by big-endian version so a cursor walks
// them in order. Appends are transactional, which gives the gap-free
// version guarantee across process restarts.
type BoltEventStore struct {
	db *bolt.DB
}

// NewBoltEventStore opens (or creates) the event database at path.
func NewBoltEventStore(path string) (*BoltEventStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvents); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketEventIDs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create event buckets: %w", err)
	}
	return &BoltEventStore{db: db}, nil
}

// Close closes the database.
func (s *BoltEventStore) Close() error {
	return s.db.Close()
}

// Append implements EventStore.
func (s *BoltEventStore) Append(_ context.Context, ev *domain.Event) error {
	if ev.SubmissionID == "" || ev.EventID == "" {
		return apperrors.StorageError("event is missing submission or event id")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketEventIDs)
		if ids.Get([]byte(ev.EventID)) != nil {
			return apperrors.Conflict(fmt.Sprintf("duplicate event id %s", ev.EventID))
		}

		sub, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(ev.SubmissionID))
		if err != nil {
			return err
		}

		var last int64
		if k, _ := sub.Cursor().Last(); k != nil {
			last = int64(binary.BigEndian.Uint64(k))
		}
		if ev.Version != last+1 {
			return apperrors.Conflict(fmt.Sprintf("event version %d for %s, want %d", ev.Version, ev.SubmissionID, last+1))
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := sub.Put(versionKey(ev.Version), data); err != nil {
			return err
		}
		return ids.Put([]byte(ev.EventID), []byte(ev.SubmissionID))
	})
	if err != nil {
		if _, ok := apperrors.IsAppError(err); ok {
			return err
		}
		return apperrors.Wrap(err, apperrors.TypeStorageError, "append event")
	}
	return nil
}

// List implements EventStore.
func (s *BoltEventStore) List(_ context.Context, submissionID string, filter EventFilter) ([]*domain.Event, error) {
	matched, err := s.load(submissionID, filter)
	if err != nil {
		return nil, err
	}
	return paginate(matched, filter), nil
}

// Count implements EventStore.
func (s *BoltEventStore) Count(_ context.Context, submissionID string, filter EventFilter) (int, error) {
	matched, err := s.load(submissionID, filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *BoltEventStore) load(submissionID string, filter EventFilter) ([]*domain.Event, error) {
	var matched []*domain.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		sub := tx.Bucket(bucketEvents).Bucket([]byte(submissionID))
		if sub == nil {
			return nil
		}
		return sub.ForEach(func(_, v []byte) error {
			var ev domain.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if filter.matches(&ev) {
				matched = append(matched, &ev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorageError, "read events")
	}
	return matched, nil
}

func versionKey(v int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(v))
	return k
}
