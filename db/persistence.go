package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

/*
Persistence stores the whole record collection under one named slot.

Save overwrites the slot with a full snapshot. Load returns no records and
no error when the slot is empty; unreadable content yields no records and a
*PersistenceWarning.
*/
type Persistence interface {
	Save(ctx context.Context, records []VectorRecord) error
	Load(ctx context.Context) ([]VectorRecord, error)
}

const snapshotVersion = 1

type snapshot struct {
	Version int            `json:"version"`
	Records []VectorRecord `json:"records"`
}

/*
encodeSnapshot serializes records into the textual slot format
*/
func encodeSnapshot(records []VectorRecord) ([]byte, error) {
	if records == nil {
		records = []VectorRecord{}
	}
	return json.Marshal(snapshot{Version: snapshotVersion, Records: records})
}

/*
decodeSnapshot parses the slot format written by encodeSnapshot
*/
func decodeSnapshot(data []byte) ([]VectorRecord, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	for i, rec := range snap.Records {
		if rec.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
	}
	return snap.Records, nil
}

/*
FilePersistence keeps the snapshot in a JSON file on disk
*/
type FilePersistence struct {
	basePath string
	slot     string
	mu       sync.RWMutex
}

/*
NewFilePersistence creates a file adapter writing <basePath>/<slot>.json
*/
func NewFilePersistence(basePath, slot string) *FilePersistence {
	return &FilePersistence{
		basePath: basePath,
		slot:     slot,
	}
}

/*
Path returns the snapshot file location
*/
func (p *FilePersistence) Path() string {
	return filepath.Join(p.basePath, p.slot+".json")
}

/*
Save writes the snapshot to a temporary file and renames it into place
*/
func (p *FilePersistence) Save(_ context.Context, records []VectorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := encodeSnapshot(records)
	if err != nil {
		return p.warn("save", err)
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(p.basePath, 0755); err != nil {
		return p.warn("save", err)
	}

	tmp, err := os.CreateTemp(p.basePath, p.slot+".*.tmp")
	if err != nil {
		return p.warn("save", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return p.warn("save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return p.warn("save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return p.warn("save", err)
	}
	if err := os.Rename(tmpName, p.Path()); err != nil {
		os.Remove(tmpName)
		return p.warn("save", err)
	}
	return nil
}

/*
Load reads the snapshot file. A missing file is an empty store.
*/
func (p *FilePersistence) Load(_ context.Context) ([]VectorRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, err := os.ReadFile(p.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, p.warn("load", err)
	}

	records, err := decodeSnapshot(data)
	if err != nil {
		return nil, p.warn("load", err)
	}
	return records, nil
}

func (p *FilePersistence) warn(op string, err error) error {
	return &PersistenceWarning{Op: op, Slot: p.Path(), Err: err}
}

/*
MemoryPersistence keeps the encoded snapshot in memory. It is meant for
tests and for running without durable storage.
*/
type MemoryPersistence struct {
	mu   sync.Mutex
	data []byte
}

/*
NewMemoryPersistence creates an empty in-memory slot
*/
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

func (m *MemoryPersistence) Save(_ context.Context, records []VectorRecord) error {
	data, err := encodeSnapshot(records)
	if err != nil {
		return &PersistenceWarning{Op: "save", Slot: "memory", Err: err}
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersistence) Load(_ context.Context) ([]VectorRecord, error) {
	m.mu.Lock()
	data := m.data
	m.mu.Unlock()

	if data == nil {
		return nil, nil
	}
	records, err := decodeSnapshot(data)
	if err != nil {
		return nil, &PersistenceWarning{Op: "load", Slot: "memory", Err: err}
	}
	return records, nil
}

/*
Bytes returns the raw slot content
*/
func (m *MemoryPersistence) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

/*
SetBytes replaces the raw slot content
*/
func (m *MemoryPersistence) SetBytes(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}
