package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Ansinwind/25Summer-FitnessAgent/internal/storage"
)

const (
	stateKeyPrefix        = "state/"
	profileKeyPrefix      = "profile/"
	consultationKeyPrefix = "consultations/"
)

// Store owns the canonical in-memory State for one client session and its
// durable representation. One Store is shared by every concurrent request in
// the session, so all access goes through the mutex: readers get snapshot
// copies from Current and writers mutate under Update.
type Store struct {
	kv      storage.KV
	session string
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state *State
}

func NewStore(kv storage.KV, session string, logger zerolog.Logger) *Store {
	return &Store{
		kv:      kv,
		session: session,
		log:     logger.With().Str("session_id", session).Logger(),
		now:     time.Now,
	}
}

// load reads the durable document, falling back to the default state when it
// is absent or malformed. Malformed data never errors; it is logged and the
// session simply starts fresh. Caller holds mu.
func (s *Store) load(ctx context.Context) {
	s.state = Default()

	data, err := s.kv.Get(ctx, stateKeyPrefix+s.session)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug().Msg("No stored fitness state, using defaults")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read stored fitness state, using defaults")
		return
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn().Err(err).Msg("Stored fitness state is malformed, using defaults")
		return
	}

	clamp(&loaded)
	s.state = &loaded
}

// clamp resets fields that outside writers could have corrupted. Both are
// derived-only, so a document violating the invariants starts over.
func clamp(st *State) {
	if st.EnergyLevel < MinEnergyLevel || st.EnergyLevel > MaxEnergyLevel {
		st.EnergyLevel = defaultEnergyLevel
	}
	switch st.DailyStatus {
	case StatusNormal, StatusTired, StatusInjured, StatusRecovering:
	default:
		st.DailyStatus = StatusNormal
	}
}

// Current returns a snapshot of the live state, loading it first if needed.
// The snapshot is safe to read after the lock is released; payload fields are
// only ever replaced wholesale, never mutated in place.
func (s *Store) Current(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.load(ctx)
	}
	return *s.state
}

// Update applies mutate to the live state under the lock, stamps lastUpdate
// and persists the result. The in-memory record stays authoritative even
// when persistence fails.
func (s *Store) Update(ctx context.Context, mutate func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.load(ctx)
	}
	mutate(s.state)
	return s.save(ctx)
}

// save stamps lastUpdate and persists the full state. Caller holds mu.
func (s *Store) save(ctx context.Context) error {
	s.state.LastUpdate = s.now()

	data, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	if err := s.kv.Set(ctx, stateKeyPrefix+s.session, data); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// Reset is the explicit user-triggered data reset: it discards the state and
// consultation history. The profile is left alone; it has its own write path.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Default()
	if err := s.kv.Delete(ctx, stateKeyPrefix+s.session); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	if err := s.kv.Delete(ctx, consultationKeyPrefix+s.session); err != nil {
		return fmt.Errorf("failed to reset consultations: %w", err)
	}
	return nil
}

// Restore replaces the session's state wholesale, used by data import. The
// same invariant clamping as load applies to the incoming document.
func (s *Store) Restore(ctx context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clamp(st)
	s.state = st
	return s.save(ctx)
}

// ReplaceConsultations overwrites the consultation history, used by data
// import.
func (s *Store) ReplaceConsultations(ctx context.Context, list []Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeConsultations(ctx, list)
}

// Profile reads the stored user profile. A missing profile is (nil, nil);
// a backend failure is an error, not an empty profile.
func (s *Store) Profile(ctx context.Context) (*Profile, error) {
	data, err := s.kv.Get(ctx, profileKeyPrefix+s.session)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn().Err(err).Msg("Stored profile is malformed")
		return nil, nil
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}
	if err := s.kv.Set(ctx, profileKeyPrefix+s.session, data); err != nil {
		return fmt.Errorf("failed to persist profile: %w", err)
	}
	return nil
}

// Consultations returns the saved medical Q&A history, oldest first.
func (s *Store) Consultations(ctx context.Context) ([]Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consultations(ctx)
}

// consultations distinguishes an absent history (empty) from a backend read
// failure (error). Caller holds mu.
func (s *Store) consultations(ctx context.Context) ([]Consultation, error) {
	data, err := s.kv.Get(ctx, consultationKeyPrefix+s.session)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read consultations: %w", err)
	}
	var list []Consultation
	if err := json.Unmarshal(data, &list); err != nil {
		s.log.Warn().Err(err).Msg("Stored consultations are malformed")
		return nil, nil
	}
	return list, nil
}

// AppendConsultation adds one Q&A exchange, keeping only the most recent
// entries. A read failure aborts the append: rebuilding the list from the
// new entry alone would overwrite the stored history on the next write.
func (s *Store) AppendConsultation(ctx context.Context, c Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.consultations(ctx)
	if err != nil {
		return err
	}
	return s.writeConsultations(ctx, append(list, c))
}

// writeConsultations trims and persists the history. Caller holds mu.
func (s *Store) writeConsultations(ctx context.Context, list []Consultation) error {
	if len(list) > maxConsultations {
		list = list[len(list)-maxConsultations:]
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to serialize consultations: %w", err)
	}
	if err := s.kv.Set(ctx, consultationKeyPrefix+s.session, data); err != nil {
		return fmt.Errorf("failed to persist consultations: %w", err)
	}
	return nil
}

// maxCachedSessions caps how many live session stores stay in memory. Evicted
// sessions reload from durable storage on their next request.
const maxCachedSessions = 512

// Manager hands out the per-session Store instances. Stores are cached in an
// LRU so a long-running server does not accumulate one record per session
// ever seen.
type Manager struct {
	kv    storage.KV
	log   zerolog.Logger
	mu    sync.Mutex
	cache *lru.Cache[string, *Store]
}

func NewManager(kv storage.KV, logger zerolog.Logger) *Manager {
	cache, _ := lru.New[string, *Store](maxCachedSessions)
	return &Manager{kv: kv, log: logger, cache: cache}
}

// Store returns the session's store, creating and caching it on first use.
// The same session ID always yields the same live instance while cached.
func (m *Manager) Store(session string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.cache.Get(session); ok {
		return s
	}
	s := NewStore(m.kv, session, m.log)
	m.cache.Add(session, s)
	return s
}
