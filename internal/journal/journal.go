// internal/journal/journal.go
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/FairForge/stevedore/internal/transfer"
)

var resultsBucket = []byte("results")

// entry is the persisted form of a terminal transfer result.
type entry struct {
	RequestID   string    `json:"request_id"`
	Status      string    `json:"status"`
	Strategy    string    `json:"strategy"`
	Bytes       int64     `json:"bytes"`
	Attempts    int       `json:"attempts"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Journal persists terminal results across runs so resubmitted requests
// that already succeeded are not transferred again. It implements
// transfer.Journal.
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) a journal at the given path.
func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create results bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record persists one terminal result, overwriting any earlier outcome
// for the same request.
func (j *Journal) Record(res transfer.TransferResult) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(resultsBucket)

		data, err := json.Marshal(entry{
			RequestID:   res.RequestID,
			Status:      string(res.Status),
			Strategy:    res.Strategy,
			Bytes:       res.BytesTransferred,
			Attempts:    res.Attempts,
			ErrorKind:   res.ErrorKind,
			CompletedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}

		return b.Put([]byte(res.RequestID), data)
	})
}

// Completed returns the recorded terminal result for a request, if any.
func (j *Journal) Completed(requestID string) (transfer.TransferResult, bool) {
	var e entry
	found := false

	_ = j.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(resultsBucket).Get([]byte(requestID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		found = true
		return nil
	})

	if !found {
		return transfer.TransferResult{}, false
	}

	return transfer.TransferResult{
		RequestID:        e.RequestID,
		Status:           transfer.Status(e.Status),
		Strategy:         e.Strategy,
		BytesTransferred: e.Bytes,
		Attempts:         e.Attempts,
		ErrorKind:        e.ErrorKind,
	}, true
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
