package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/balance/internal/storage"
	"go.etcd.io/bbolt"
)

// Append stores one decision record.
func (s *Store) Append(ctx context.Context, rec storage.DecisionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ID == "" {
		key, err := decisionKey(rec.Timestamp)
		if err != nil {
			return err
		}
		rec.ID = key
	}
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketDecisions))
		if bucket == nil {
			return fmt.Errorf("decisions bucket missing")
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter storage.HistoryFilter) ([]storage.DecisionRecord, error) {
	records := make([]storage.DecisionRecord, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketDecisions))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rec storage.DecisionRecord
			if err := unmarshal(v, &rec); err != nil {
				return err
			}
			if !matches(rec, filter) {
				continue
			}
			records = append(records, rec)
			if filter.Limit > 0 && len(records) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func matches(rec storage.DecisionRecord, filter storage.HistoryFilter) bool {
	if filter.State != "" && rec.State != filter.State {
		return false
	}
	if filter.Action != "" && rec.Action != filter.Action {
		return false
	}
	if filter.StartTime != nil && rec.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && rec.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

// DeleteBefore removes records older than cutoff and reports how many went.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketDecisions))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec storage.DecisionRecord
			if err := unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Timestamp.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
}
