package session

import (
	"sync"
	"time"

	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/network"
)

// Store owns the table of live sessions. The table mutex guards only
// the id map; every session carries its own lock, so operations on
// different sessions don't serialize each other.
type Store struct {
	mu       sync.Mutex
	sessions map[Id]*Session

	conf config.Session
	log  *logger.Logger
}

func NewStore(conf config.Session, log *logger.Logger) *Store {
	return &Store{
		sessions: make(map[Id]*Session, 10),
		conf:     conf,
		log:      log,
	}
}

// Create makes a new session with a fresh unique id and a full TTL window.
// Id collisions are practically impossible at 128 random bits, the loop
// just guards the table invariant.
func (s *Store) Create(meta Metadata) *Session {
	if meta.PreferredPlayers == 0 {
		meta.PreferredPlayers = 2
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var id Id
	for {
		id = newId()
		if _, ok := s.sessions[id]; !ok {
			break
		}
	}
	sess := newSession(id, meta, now, s.conf.TTL)
	s.sessions[id] = sess
	s.log.Debug().Msgf("created session %v", id)
	return sess
}

// Get returns a live session or nil. An expired entry is
// removed from the table as a side effect (lazy expiry).
func (s *Store) Get(id Id) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if sess.expired(time.Now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		s.log.Debug().Msgf("session %v expired and removed", id)
		return nil
	}
	return sess
}

// Touch resets the session TTL window from now.
func (s *Store) Touch(id Id) {
	if sess := s.Get(id); sess != nil {
		sess.mu.Lock()
		sess.touchLocked(s.conf.TTL, time.Now())
		sess.mu.Unlock()
	}
}

// BindExtension attaches a connection as the session's extension endpoint.
// Re-binding the same connection is idempotent; a different connection
// gets ErrExtensionTaken.
func (s *Store) BindExtension(id Id, conn network.Uid) error {
	sess := s.Get(id)
	if sess == nil {
		return ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.extension != network.EmptyUid && sess.extension != conn {
		return ErrExtensionTaken
	}
	sess.extension = conn
	sess.touchLocked(s.conf.TTL, time.Now())
	return nil
}

// UnbindExtension clears the extension binding, no-op when absent.
func (s *Store) UnbindExtension(id Id) {
	sess := s.Get(id)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.extension = network.EmptyUid
	sess.touchLocked(s.conf.TTL, time.Now())
	sess.mu.Unlock()
}

// AssignSlot binds a connection to a free player slot.
func (s *Store) AssignSlot(id Id, slot Slot, conn network.Uid) error {
	if !ValidSlot(slot) {
		return ErrInvalidSlot
	}
	sess := s.Get(id)
	if sess == nil {
		return ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.slots[slot]
	if st.connected {
		return ErrSlotTaken
	}
	now := time.Now()
	*st = slotState{conn: conn, connected: true, joinedAt: now}
	sess.touchLocked(s.conf.TTL, now)
	return nil
}

// ReleaseSlotByConn scans the slots and clears the first one held by
// the connection, returning which slot was released.
func (s *Store) ReleaseSlotByConn(id Id, conn network.Uid) (Slot, bool) {
	sess := s.Get(id)
	if sess == nil {
		return "", false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, slot := range Slots {
		st := sess.slots[slot]
		if st.conn == conn {
			*st = slotState{}
			sess.touchLocked(s.conf.TTL, time.Now())
			return slot, true
		}
	}
	return "", false
}

// IsReady reports whether the session has an extension bound and
// at least one controller connected.
func (s *Store) IsReady(id Id) bool {
	sess := s.Get(id)
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.readyLocked()
}

// ConnectedPlayers returns the number of occupied slots.
func (s *Store) ConnectedPlayers(id Id) int {
	sess := s.Get(id)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.connectedLocked()
}

// RecordInput bumps the session activity counters.
func (s *Store) RecordInput(id Id) {
	sess := s.Get(id)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.totalInputs++
	sess.touchLocked(s.conf.TTL, time.Now())
	sess.mu.Unlock()
}

// Enqueue appends a message to the session poll queue,
// dropping the oldest entries over the configured cap.
func (s *Store) Enqueue(id Id, message any) bool {
	sess := s.Get(id)
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	sess.queue.Add(message)
	for sess.queue.Length() > s.conf.QueueLimit {
		sess.queue.Remove()
	}
	sess.touchLocked(s.conf.TTL, time.Now())
	sess.mu.Unlock()
	return true
}

// Drain atomically takes everything accumulated in the poll queue
// since the previous drain, in arrival order.
func (s *Store) Drain(id Id) ([]any, bool) {
	sess := s.Get(id)
	if sess == nil {
		return nil, false
	}
	sess.mu.Lock()
	messages := make([]any, 0, sess.queue.Length())
	for sess.queue.Length() > 0 {
		messages = append(messages, sess.queue.Remove())
	}
	sess.touchLocked(s.conf.TTL, time.Now())
	sess.mu.Unlock()
	return messages, true
}

// Len counts live (non-expired) sessions.
func (s *Store) Len() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.expired(now) {
			n++
		}
	}
	return n
}

// Sweep removes every entry past its expiry. The table lock is not
// held for the whole scan, entries are inspected under brief
// per-entry sections so concurrent mutators aren't starved.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	snapshot := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess)
	}
	s.mu.Unlock()

	cleaned := 0
	for _, sess := range snapshot {
		if !sess.expired(now) {
			continue
		}
		s.mu.Lock()
		// recheck under the table lock, a touch could have resurrected it
		if cur, ok := s.sessions[sess.id]; ok && cur == sess && cur.expired(now) {
			delete(s.sessions, sess.id)
			cleaned++
		}
		s.mu.Unlock()
	}
	if cleaned > 0 {
		s.log.Debug().Msgf("cleaned up %d expired sessions", cleaned)
	}
	return cleaned
}

// Delete removes a session unconditionally (admin path).
func (s *Store) Delete(id Id) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return ok
}
