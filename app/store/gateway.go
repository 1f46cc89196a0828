package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// BatchGetLimit is the maximum number of keys per batched read request.
	BatchGetLimit = 100
	// BatchWriteLimit is the maximum number of records per write batch.
	BatchWriteLimit = 25
)

var (
	// ErrConditionFailed is returned when a conditional write loses to an
	// existing record, e.g. the feed URL uniqueness marker.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrNotFound is returned by updates targeting a missing record.
	ErrNotFound = errors.New("store: record not found")
)

// Gateway is the batched read/write interface to the record table. It owns
// key encoding and the partitioning of oversized requests; callers never see
// batch boundaries.
type Gateway struct {
	db *DB
}

func NewGateway(db *DB) *Gateway {
	return &Gateway{db: db}
}

// Get retrieves a single record, returning nil when it does not exist.
func (g *Gateway) Get(ctx context.Context, key Key) (*Record, error) {
	var raw string
	err := g.db.QueryRowContext(ctx, `
		SELECT attrs FROM records WHERE pk = ? AND sk = ?
	`, key.PK, key.SK).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	attrs, err := decodeAttrs(raw)
	if err != nil {
		return nil, err
	}

	return &Record{Key: key, Attrs: attrs}, nil
}

// BatchGet retrieves the records for the exact key set. Requests larger than
// BatchGetLimit are partitioned internally and the results merged. Missing
// keys are simply absent from the result map.
func (g *Gateway) BatchGet(ctx context.Context, keys []Key) (map[Key]Record, error) {
	records := make(map[Key]Record, len(keys))

	for _, batch := range chunk(keys, BatchGetLimit) {
		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*2)
		for _, key := range batch {
			placeholders = append(placeholders, "(?, ?)")
			args = append(args, key.PK, key.SK)
		}

		rows, err := g.db.QueryContext(ctx, `
			SELECT pk, sk, attrs FROM records WHERE (pk, sk) IN (VALUES `+
			strings.Join(placeholders, ", ")+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to batch get records: %w", err)
		}

		if err := scanRecords(rows, records); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// BatchWrite upserts the given records in batches of BatchWriteLimit. Each
// batch commits independently: a failure does not roll back batches already
// committed. Upserts are idempotent, so retrying a partially applied write
// set converges on the same stored state.
func (g *Gateway) BatchWrite(ctx context.Context, records []Record) error {
	batches := chunk(records, BatchWriteLimit)

	for i, batch := range batches {
		if err := g.writeBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to write batch %d/%d: %w", i+1, len(batches), err)
		}
	}

	return nil
}

func (g *Gateway) writeBatch(ctx context.Context, batch []Record) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(TimeFormat)
	for _, record := range batch {
		raw, err := encodeAttrs(record.Attrs)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (pk, sk, attrs, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (pk, sk) DO UPDATE SET
				attrs = excluded.attrs,
				updated_at = excluded.updated_at
		`, record.Key.PK, record.Key.SK, raw, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
	}

	return tx.Commit()
}

// PutNewFeed atomically creates the uniqueness marker and the feed metadata
// record. The marker insert is conditional on no marker existing; a
// collision aborts the whole transaction with ErrConditionFailed.
func (g *Gateway) PutNewFeed(ctx context.Context, marker Key, meta Record) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(TimeFormat)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (pk, sk, attrs, created_at, updated_at)
		SELECT ?, ?, '{}', ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM records WHERE pk = ? AND sk = ?)
	`, marker.PK, marker.SK, now, now, marker.PK, marker.SK)
	if err != nil {
		return fmt.Errorf("failed to insert uniqueness marker: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check marker insert: %w", err)
	}
	if inserted == 0 {
		return ErrConditionFailed
	}

	raw, err := encodeAttrs(meta.Attrs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (pk, sk, attrs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pk, sk) DO UPDATE SET
			attrs = excluded.attrs,
			updated_at = excluded.updated_at
	`, meta.Key.PK, meta.Key.SK, raw, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert feed metadata: %w", err)
	}

	return tx.Commit()
}

// UpdateMeta merge-updates attributes of an existing record. The set map
// overwrites attribute values; the add map increments numeric attributes,
// treating a missing attribute as zero. The record must already exist.
func (g *Gateway) UpdateMeta(ctx context.Context, key Key, set Attrs, add map[string]int64) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT attrs FROM records WHERE pk = ? AND sk = ?
	`, key.PK, key.SK).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read record for update: %w", err)
	}

	attrs, err := decodeAttrs(raw)
	if err != nil {
		return err
	}

	for name, value := range set {
		attrs[name] = value
	}
	for name, delta := range add {
		attrs[name] = NumberValue(attrs.GetNumber(name) + delta)
	}

	updated, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE records SET attrs = ?, updated_at = ? WHERE pk = ? AND sk = ?
	`, updated, time.Now().UTC().Format(TimeFormat), key.PK, key.SK)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	return tx.Commit()
}

// ScanMeta returns all feed metadata records.
func (g *Gateway) ScanMeta(ctx context.Context) ([]Record, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT pk, sk, attrs FROM records
		WHERE pk LIKE ? AND sk LIKE ?
	`, feedPKPrefix+"%", metaSKPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed metadata: %w", err)
	}

	found := make(map[Key]Record)
	if err := scanRecords(rows, found); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(found))
	for _, record := range found {
		records = append(records, record)
	}
	return records, nil
}

// CountFeeds returns the total number of feed metadata records.
func (g *Gateway) CountFeeds(ctx context.Context) (int, error) {
	return g.countBySK(ctx, metaSKPrefix)
}

// CountItems returns the total number of stored feed items.
func (g *Gateway) CountItems(ctx context.Context) (int, error) {
	return g.countBySK(ctx, itemSKPrefix)
}

func (g *Gateway) countBySK(ctx context.Context, prefix string) (int, error) {
	var count int
	err := g.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE sk LIKE ?
	`, prefix+"%").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func scanRecords(rows *sql.Rows, out map[Key]Record) error {
	defer rows.Close()

	for rows.Next() {
		var key Key
		var raw string
		if err := rows.Scan(&key.PK, &key.SK, &raw); err != nil {
			return fmt.Errorf("failed to scan record row: %w", err)
		}

		attrs, err := decodeAttrs(raw)
		if err != nil {
			return err
		}
		out[key] = Record{Key: key, Attrs: attrs}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating record rows: %w", err)
	}
	return nil
}

func encodeAttrs(attrs Attrs) (string, error) {
	if attrs == nil {
		attrs = Attrs{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(raw), nil
}

func decodeAttrs(raw string) (Attrs, error) {
	attrs := Attrs{}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return attrs, nil
}

func chunk[T any](items []T, size int) [][]T {
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}
