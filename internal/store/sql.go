package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	internalErrors "apna-payments/internal/errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordRow struct {
	ID        string         `gorm:"primaryKey;size:36"`
	Document  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (recordRow) TableName() string { return "records" }

// recordKeyRow maps one indexed field value to the record carrying it. Its
// primary key is what makes upserts atomic per key.
type recordKeyRow struct {
	Field    string `gorm:"primaryKey;size:64"`
	Value    string `gorm:"primaryKey;size:255"`
	RecordID string `gorm:"size:36;not null;index"`
}

func (recordKeyRow) TableName() string { return "record_keys" }

// SQLStore keeps records in a relational database through gorm. Postgres
// and SQLite are both supported.
type SQLStore struct {
	db   *gorm.DB
	opts Options
}

func NewSQLStore(db *gorm.DB, opts Options) (*SQLStore, error) {
	if err := db.AutoMigrate(&recordRow{}, &recordKeyRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrating record tables: %v", internalErrors.ErrStoreUnavailable, err)
	}
	return &SQLStore{db: db, opts: opts}, nil
}

func (s *SQLStore) UpsertByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error) {
	incoming, err := s.opts.prepare(keyField, keyValue, doc)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the key. A concurrent claimant blocks here until we commit
		// and then sees our row.
		claim := recordKeyRow{Field: keyField, Value: keyValue, RecordID: uuid.NewString()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim).Error; err != nil {
			return err
		}

		var key recordKeyRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("field = ? AND value = ?", keyField, keyValue).
			Take(&key).Error
		if err != nil {
			return err
		}

		if key.RecordID == claim.RecordID {
			out, err = s.create(tx, claim.RecordID, incoming)
			return err
		}

		row, err := s.lockRecord(tx, key.RecordID)
		if err != nil {
			return err
		}
		out, err = s.merge(tx, row, incoming)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *SQLStore) MergeByKey(ctx context.Context, keyField, keyValue string, doc Document) (*Record, error) {
	if err := s.opts.checkKey(keyField, keyValue); err != nil {
		return nil, err
	}
	incoming, err := normalize(doc)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The record row is the lock; key rows are only read here so that
		// merges never wait on a key an upsert is holding.
		var key recordKeyRow
		err := tx.Where("field = ? AND value = ?", keyField, keyValue).Take(&key).Error
		if err != nil {
			return err
		}

		row, err := s.lockRecord(tx, key.RecordID)
		if err != nil {
			return err
		}

		current, err := decode(row)
		if err != nil {
			return err
		}
		if v, _ := keyString(current.Fields[keyField]); v != keyValue {
			// Re-keyed between the index read and the lock.
			return gorm.ErrRecordNotFound
		}

		out, err = s.merge(tx, row, incoming)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s=%s", internalErrors.ErrNotFound, keyField, keyValue)
		}
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *SQLStore) FindByKey(ctx context.Context, keyField, keyValue string) (*Record, error) {
	if err := s.opts.checkKey(keyField, keyValue); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var key recordKeyRow
	err := db.Where("field = ? AND value = ?", keyField, keyValue).Take(&key).Error
	if err == nil {
		var row recordRow
		err = db.Where("id = ?", key.RecordID).Take(&row).Error
		if err == nil {
			return decode(row)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s=%s", internalErrors.ErrNotFound, keyField, keyValue)
	}
	return nil, wrapErr(err)
}

func (s *SQLStore) create(tx *gorm.DB, id string, fields Document) (*Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := recordRow{ID: id, Document: datatypes.JSON(raw), CreatedAt: now, UpdatedAt: now}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}
	if err := s.reindex(tx, id, nil, fields); err != nil {
		return nil, err
	}

	return &Record{ID: id, Fields: fields, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLStore) merge(tx *gorm.DB, row recordRow, incoming Document) (*Record, error) {
	current, err := decode(row)
	if err != nil {
		return nil, err
	}

	merged, changed, err := Merge(current.Fields, incoming, s.opts.Policy)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = tx.Model(&recordRow{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{"document": datatypes.JSON(raw), "updated_at": now}).Error
	if err != nil {
		return nil, err
	}
	if err := s.reindex(tx, row.ID, current.Fields, merged); err != nil {
		return nil, err
	}

	current.Fields = merged
	current.UpdatedAt = now
	return current, nil
}

func (s *SQLStore) lockRecord(tx *gorm.DB, id string) (recordRow, error) {
	var row recordRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error
	return row, err
}

// reindex makes every indexed value in next point at id and removes entries
// for values only prev carried.
func (s *SQLStore) reindex(tx *gorm.DB, id string, prev, next Document) error {
	entries := s.opts.indexEntries(next)
	keep := make(map[indexEntry]bool, len(entries))

	for _, e := range entries {
		keep[e] = true
		row := recordKeyRow{Field: e.field, Value: e.value, RecordID: id}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		var owner recordKeyRow
		if err := tx.Where("field = ? AND value = ?", e.field, e.value).Take(&owner).Error; err != nil {
			return err
		}
		if owner.RecordID != id {
			return fmt.Errorf("%w: %s=%s", internalErrors.ErrKeyConflict, e.field, e.value)
		}
	}

	for _, old := range s.opts.indexEntries(prev) {
		if keep[old] {
			continue
		}
		err := tx.Where("field = ? AND value = ? AND record_id = ?", old.field, old.value, id).
			Delete(&recordKeyRow{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func decode(row recordRow) (*Record, error) {
	fields := Document{}
	if err := json.Unmarshal(row.Document, &fields); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", row.ID, err)
	}
	return &Record{
		ID:        row.ID,
		Fields:    fields,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// wrapErr marks infrastructure failures as store unavailability while
// keeping domain errors intact.
func wrapErr(err error) error {
	for _, domain := range []error{
		internalErrors.ErrNotFound,
		internalErrors.ErrKeyConflict,
		internalErrors.ErrImmutableField,
		internalErrors.ErrMalformedRequest,
		internalErrors.ErrUnindexedField,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", internalErrors.ErrStoreUnavailable, err)
}
