package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // SQLite driver
)

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS knowledge_records (
	slot TEXT NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	text TEXT NOT NULL,
	vector BLOB NOT NULL,
	metadata TEXT NOT NULL,
	PRIMARY KEY (slot, position)
);`

/*
SQLitePersistence stores each slot as ordered rows in an embedded SQLite
database. A save replaces all rows of the slot in one transaction.
*/
type SQLitePersistence struct {
	db   *sql.DB
	path string
	slot string
}

/*
NewSQLitePersistence opens (or creates) the database at path
*/
func NewSQLitePersistence(ctx context.Context, path, slot string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, createRecordsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLitePersistence{db: db, path: path, slot: slot}, nil
}

/*
Save replaces the slot's rows with records
*/
func (p *SQLitePersistence) Save(ctx context.Context, records []VectorRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return p.warn("save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_records WHERE slot = ?", p.slot); err != nil {
		return p.warn("save", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO knowledge_records (slot, position, id, text, vector, metadata) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return p.warn("save", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return p.warn("save", fmt.Errorf("record %s metadata: %w", rec.ID, err))
		}
		if _, err := stmt.ExecContext(ctx, p.slot, i, rec.ID, rec.Text, encodeVector(rec.Vector), string(meta)); err != nil {
			return p.warn("save", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return p.warn("save", err)
	}
	return nil
}

/*
Load reads the slot's rows in position order
*/
func (p *SQLitePersistence) Load(ctx context.Context) ([]VectorRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT id, text, vector, metadata FROM knowledge_records WHERE slot = ? ORDER BY position", p.slot)
	if err != nil {
		return nil, p.warn("load", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var (
			rec  VectorRecord
			blob []byte
			meta string
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &meta); err != nil {
			return nil, p.warn("load", err)
		}
		if rec.Vector, err = decodeVector(blob); err != nil {
			return nil, p.warn("load", fmt.Errorf("record %s: %w", rec.ID, err))
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, p.warn("load", fmt.Errorf("record %s metadata: %w", rec.ID, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, p.warn("load", err)
	}
	return records, nil
}

/*
Close releases the database handle
*/
func (p *SQLitePersistence) Close() error {
	return p.db.Close()
}

func (p *SQLitePersistence) warn(op string, err error) error {
	return &PersistenceWarning{Op: op, Slot: p.path + "#" + p.slot, Err: err}
}

/*
encodeVector writes a length prefix followed by little-endian float64 values
*/
func encodeVector(v []float64) []byte {
	buf := make([]byte, 4+8*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[4+8*i:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) != 4+8*n {
		return nil, fmt.Errorf("vector blob length %d does not match %d values", len(data), n)
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[4+8*i:]))
	}
	return v, nil
}
