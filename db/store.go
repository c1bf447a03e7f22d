package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"health-kb/embedding"
)

const (
	// DefaultDimensions is the embedding length used when none is configured
	DefaultDimensions = 768
	// DefaultEmbedTimeout bounds a single provider call
	DefaultEmbedTimeout = 10 * time.Second
)

/*
Store is the knowledge store: an ordered record collection with
write-through persistence and cosine similarity search.

A single mutex guards the collection and its persisted mirror. The provider
call runs outside the lock.
*/
type Store struct {
	dims         int
	provider     embedding.Provider
	fallback     *embedding.Pseudo
	persistence  Persistence
	logger       log.FieldLogger
	embedTimeout time.Duration
	onWarning    func(error)
	newID        func() string

	mu      sync.Mutex
	records []VectorRecord
	index   map[string]int
}

/*
Option configures a Store
*/
type Option func(*Store)

/*
WithDimensions sets the vector length D shared by every record
*/
func WithDimensions(d int) Option {
	return func(s *Store) { s.dims = d }
}

/*
WithProvider sets the primary embedding provider. Without one every
embedding comes from the deterministic fallback.
*/
func WithProvider(p embedding.Provider) Option {
	return func(s *Store) { s.provider = p }
}

/*
WithPersistence sets the snapshot slot. Defaults to an in-memory slot.
*/
func WithPersistence(p Persistence) Option {
	return func(s *Store) { s.persistence = p }
}

/*
WithLogger sets the logger used for warnings and fallbacks
*/
func WithLogger(l log.FieldLogger) Option {
	return func(s *Store) { s.logger = l }
}

/*
WithEmbedTimeout bounds each provider call. A timeout counts as a provider failure.
*/
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Store) { s.embedTimeout = d }
}

/*
WithWarningHandler receives every PersistenceWarning in addition to the log
*/
func WithWarningHandler(fn func(error)) Option {
	return func(s *Store) { s.onWarning = fn }
}

/*
WithIDGenerator replaces the record id generator
*/
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

/*
Open creates a store and hydrates it once from its persistence slot.

Missing or unreadable persisted state yields an empty store; the latter is
reported as a warning.
*/
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		dims:         DefaultDimensions,
		embedTimeout: DefaultEmbedTimeout,
		newID:        newRecordID,
		index:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.dims <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimensions, s.dims)
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	if s.persistence == nil {
		s.persistence = NewMemoryPersistence()
	}
	s.fallback = embedding.NewPseudo(s.dims)

	s.hydrate(ctx)
	return s, nil
}

func (s *Store) hydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.persistence.Load(ctx)
	if err != nil {
		s.warn(err)
		return
	}

	for _, rec := range records {
		if len(rec.Vector) != s.dims {
			s.logger.WithFields(log.Fields{
				"id":       rec.ID,
				"got":      len(rec.Vector),
				"expected": s.dims,
			}).Warn("dropping persisted record with wrong dimensions")
			continue
		}
		if _, dup := s.index[rec.ID]; dup {
			s.logger.WithField("id", rec.ID).Warn("dropping persisted record with duplicate id")
			continue
		}
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}
	s.logger.WithField("records", len(s.records)).Info("knowledge store hydrated")
}

/*
Dimensions returns D
*/
func (s *Store) Dimensions() int {
	return s.dims
}

/*
Add embeds text, appends a new record and persists the collection.

Only empty or whitespace-only text and non-finite metadata numbers fail. Provider failures fall back to the
deterministic embedding and persistence failures are reported as warnings.
*/
func (s *Store) Add(ctx context.Context, text string, metadata Metadata) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", newValidationError("add", "text must not be empty")
	}
	if err := metadata.Validate(); err != nil {
		return "", err
	}

	vector := s.embed(ctx, text)
	rec := VectorRecord{
		Text:     text,
		Vector:   vector,
		Metadata: metadata.Clone(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.uniqueID()
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	s.flush(ctx)

	return rec.ID, nil
}

/*
Search returns the topK records most similar to query.

An empty store returns no results without calling the provider. A
non-positive topK means DefaultTopK.
*/
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newValidationError("search", "query must not be empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if s.Len() == 0 {
		return []Result{}, nil
	}

	vector := s.embed(ctx, query)

	s.mu.Lock()
	results := Rank(vector, s.records, topK)
	for i := range results {
		results[i].Record = results[i].Record.clone()
	}
	s.mu.Unlock()

	return results, nil
}

/*
Clear removes every record and persists the empty collection
*/
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.index = make(map[string]int)
	s.flush(ctx)
}

/*
Delete removes a single record by id
*/
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return ErrRecordNotFound
	}

	s.records = append(s.records[:pos:pos], s.records[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	s.flush(ctx)
	return nil
}

/*
Get returns a copy of the record with the given id
*/
func (s *Store) Get(id string) (VectorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return VectorRecord{}, ErrRecordNotFound
	}
	return s.records[pos].clone(), nil
}

/*
List returns copies of all records in insertion order
*/
func (s *Store) List() []VectorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]VectorRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.clone()
	}
	return out
}

/*
Len returns the number of records
*/
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

/*
embed asks the provider for a vector and falls back to the pseudo embedding
on any failure, a timeout, or a vector of the wrong length
*/
func (s *Store) embed(ctx context.Context, text string) []float64 {
	if s.provider == nil {
		return embedding.PseudoEmbed(text, s.dims)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vector, err := s.provider.Embed(callCtx, text)
	if err == nil && len(vector) != s.dims {
		err = embedding.NewProviderError("", fmt.Errorf("%w: got %d, expected %d", ErrInvalidDimensions, len(vector), s.dims))
	}
	if err == nil && !finite(vector) {
		err = embedding.NewProviderError("", errors.New("vector has non-finite components"))
	}
	if err != nil {
		s.logger.WithError(err).Warn("embedding provider failed, using fallback embedding")
		vector, _ = s.fallback.Embed(ctx, text)
	}
	return vector
}

/*
flush writes the collection to the persistence slot. The caller holds s.mu.
*/
func (s *Store) flush(ctx context.Context) {
	snapshot := make([]VectorRecord, len(s.records))
	copy(snapshot, s.records)
	if err := s.persistence.Save(ctx, snapshot); err != nil {
		s.warn(err)
	}
}

func (s *Store) warn(err error) {
	var pw *PersistenceWarning
	if !errors.As(err, &pw) {
		err = &PersistenceWarning{Op: "persist", Err: err}
	}
	s.logger.WithError(err).Warn("knowledge store persistence warning")
	if s.onWarning != nil {
		s.onWarning(err)
	}
}

func (s *Store) uniqueID() string {
	for attempt := 0; ; attempt++ {
		id := s.newID()
		if attempt >= 8 {
			id = newRecordID()
		}
		if _, taken := s.index[id]; !taken && id != "" {
			return id
		}
	}
}

/*
newRecordID returns a UUIDv7: a millisecond timestamp plus random bits
*/
func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
