// Package roster provides the persisted candidate roster for intervue.
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/pkg/models"
)

// DefaultNamespace is the storage key the roster is persisted under.
const DefaultNamespace = "intervue:roster"

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("candidate session not found")
	// ErrNoActiveSession is returned when an operation needs an active session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrDuplicateID is returned when inserting an id that already exists.
	ErrDuplicateID = errors.New("candidate session id already exists")
)

// EventKind classifies roster changes.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventUpdated     EventKind = "updated"
	EventActivated   EventKind = "activated"
	EventDeactivated EventKind = "deactivated"
	EventReset       EventKind = "reset"
	EventReloaded    EventKind = "reloaded"
)

// Event describes one roster change.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	ActiveID  string    `json:"activeId,omitempty"`
}

// Store is the single source of truth for candidate sessions: one mapping of
// id to session, the insertion order, and the id of the active session.
// Mutations are persisted asynchronously, always after they are applied.
type Store struct {
	backend   Backend
	sessions  map[string]*models.CandidateSession
	dirty     chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	key       string
	activeID  string
	order     []string
	lastSaved []byte
	listeners []func(Event)
	mu        sync.RWMutex
	saveMu    sync.Mutex
	listenMu  sync.RWMutex
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace overrides the storage key.
func WithNamespace(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// NewStore creates an empty store and starts its persister. Call Load to
// restore the persisted roster and Close to flush and stop.
func NewStore(backend Backend, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:  backend,
		key:      DefaultNamespace,
		sessions: make(map[string]*models.CandidateSession),
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.persistLoop(ctx)
	return s
}

// Namespace returns the storage key.
func (s *Store) Namespace() string {
	return s.key
}

// Load replaces the in-memory roster with the persisted one. Undecodable
// payloads yield an empty roster; only backend I/O errors are returned.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}

	snap, err := Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Discarding unreadable roster payload, starting empty")
		snap = Snapshot{Candidates: []*models.CandidateSession{}}
		data = nil
	}

	s.mu.Lock()
	s.replaceLocked(snap)
	active := s.activeID
	count := len(s.order)
	s.mu.Unlock()

	s.saveMu.Lock()
	s.lastSaved = data
	s.saveMu.Unlock()

	log.Info().Int("candidates", count).Str("activeId", active).Msg("Roster loaded")
	return nil
}

// Reload re-reads the backend after an external edit. Payloads identical to
// the last one written by this store are ignored. saveMu is held from the
// read to the swap so a concurrent save cannot be mistaken for an edit.
func (s *Store) Reload(ctx context.Context) error {
	s.saveMu.Lock()
	data, err := s.backend.Read(ctx, s.key)
	if err != nil {
		s.saveMu.Unlock()
		return fmt.Errorf("read roster: %w", err)
	}
	if bytes.Equal(data, s.lastSaved) {
		s.saveMu.Unlock()
		return nil
	}

	snap, err := Decode(data)
	if err != nil {
		s.saveMu.Unlock()
		log.Warn().Err(err).Msg("Ignoring unreadable external roster change")
		return nil
	}

	s.mu.Lock()
	s.replaceLocked(snap)
	active := s.activeID
	s.mu.Unlock()

	s.lastSaved = data
	s.saveMu.Unlock()

	s.emit(Event{Kind: EventReloaded, ActiveID: active})
	return nil
}

func (s *Store) replaceLocked(snap Snapshot) {
	s.sessions = make(map[string]*models.CandidateSession, len(snap.Candidates))
	s.order = make([]string, 0, len(snap.Candidates))
	for _, c := range snap.Candidates {
		s.sessions[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	s.activeID = ""
	if snap.CurrentCandidateID != nil {
		s.activeID = *snap.CurrentCandidateID
	}
}

// Insert appends a new session, optionally making it the active one.
func (s *Store) Insert(session *models.CandidateSession, activate bool) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("insert: %w", ErrNotFound)
	}
	s.mu.Lock()
	if _, exists := s.sessions[session.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("insert %q: %w", session.ID, ErrDuplicateID)
	}
	c := session.Clone()
	c.Normalize()
	s.sessions[c.ID] = c
	s.order = append(s.order, c.ID)
	if activate {
		s.activeID = c.ID
	}
	active := s.activeID
	s.mu.Unlock()

	s.markDirty()
	s.emit(Event{Kind: EventCreated, SessionID: session.ID, ActiveID: active})
	return nil
}

// Upsert stores the session, replacing any entry with the same id while
// keeping its roster position.
func (s *Store) Upsert(session *models.CandidateSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("upsert: %w", ErrNotFound)
	}
	s.mu.Lock()
	_, exists := s.sessions[session.ID]
	c := session.Clone()
	c.Normalize()
	s.sessions[c.ID] = c
	if !exists {
		s.order = append(s.order, c.ID)
	}
	active := s.activeID
	s.mu.Unlock()

	s.markDirty()
	kind := EventUpdated
	if !exists {
		kind = EventCreated
	}
	s.emit(Event{Kind: kind, SessionID: session.ID, ActiveID: active})
	return nil
}

// Update applies fn to the stored session under the write lock. fn must
// validate before mutating: when it returns an error the store is not marked
// dirty.
func (s *Store) Update(id string, fn func(*models.CandidateSession) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %q: %w", id, ErrNotFound)
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	active := s.activeID
	s.mu.Unlock()

	s.markDirty()
	s.emit(Event{Kind: EventUpdated, SessionID: id, ActiveID: active})
	return nil
}

// UpdateActive applies fn to the active session.
func (s *Store) UpdateActive(fn func(*models.CandidateSession) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[s.activeID]
	if s.activeID == "" || !ok {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	id := s.activeID
	s.mu.Unlock()

	s.markDirty()
	s.emit(Event{Kind: EventUpdated, SessionID: id, ActiveID: id})
	return nil
}

// FindByID returns a copy of the session with the given id.
func (s *Store) FindByID(id string) (*models.CandidateSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("find %q: %w", id, ErrNotFound)
	}
	return sess.Clone(), nil
}

// Active returns a copy of the active session, or nil.
func (s *Store) Active() *models.CandidateSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil
	}
	return s.sessions[s.activeID].Clone()
}

// ActiveID returns the active session id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive points the active pointer at an existing session.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("activate %q: %w", id, ErrNotFound)
	}
	s.activeID = id
	s.mu.Unlock()

	s.markDirty()
	s.emit(Event{Kind: EventActivated, SessionID: id, ActiveID: id})
	return nil
}

// ClearActive drops the active pointer without touching the roster.
func (s *Store) ClearActive() {
	s.mu.Lock()
	prev := s.activeID
	s.activeID = ""
	s.mu.Unlock()
	if prev == "" {
		return
	}

	s.markDirty()
	s.emit(Event{Kind: EventDeactivated, SessionID: prev})
}

// List returns copies of all sessions in roster order.
func (s *Store) List() []*models.CandidateSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CandidateSession, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out
}

// Len returns the number of sessions in the roster.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ResetAll deletes the persisted payload, then clears every session and the
// active pointer. When the delete fails nothing changes. Irreversible.
func (s *Store) ResetAll(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete roster: %w", err)
	}

	s.mu.Lock()
	s.sessions = make(map[string]*models.CandidateSession)
	s.order = nil
	s.activeID = ""
	s.mu.Unlock()

	// Drain a pending save so the persister does not resurrect stale state.
	select {
	case <-s.dirty:
	default:
	}
	s.lastSaved = nil

	log.Info().Str("key", s.key).Msg("Roster reset")
	s.emit(Event{Kind: EventReset})
	return nil
}

// Snapshot returns the serializable form of the current roster.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Version:    SchemaVersion,
		Candidates: make([]*models.CandidateSession, 0, len(s.order)),
	}
	for _, id := range s.order {
		snap.Candidates = append(snap.Candidates, s.sessions[id].Clone())
	}
	if s.activeID != "" {
		id := s.activeID
		snap.CurrentCandidateID = &id
	}
	return snap
}

// Flush writes the current roster synchronously.
func (s *Store) Flush(ctx context.Context) error {
	return s.save(ctx)
}

// Rewrite writes the current roster even when it is unchanged since the
// last save. Used when the payload was deleted from under the store.
func (s *Store) Rewrite(ctx context.Context) error {
	s.saveMu.Lock()
	s.lastSaved = nil
	s.saveMu.Unlock()
	return s.save(ctx)
}

// Close flushes pending changes and stops the persister.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		err = s.save(ctx)
	})
	return err
}

// OnChange registers a listener called after every roster change.
// Listeners run on the mutating goroutine and must not call back into
// mutating Store methods.
func (s *Store) OnChange(fn func(Event)) {
	s.listenMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenMu.Unlock()
}

func (s *Store) emit(ev Event) {
	s.listenMu.RLock()
	listeners := append([]func(Event){}, s.listeners...)
	s.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
			saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := s.save(saveCtx); err != nil {
				log.Error().Err(err).Str("key", s.key).Msg("Failed to persist roster")
			}
			cancel()
		}
	}
}

// save snapshots and writes under saveMu so writes land in snapshot order.
func (s *Store) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := Encode(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if bytes.Equal(data, s.lastSaved) {
		return nil
	}
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	s.lastSaved = data
	return nil
}
