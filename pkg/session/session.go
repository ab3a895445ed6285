package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/vaibhav210603/QRcade/pkg/network"
)

// Id is an opaque session identifier: 128 bits of randomness, hex-encoded.
type Id string

// Slot is one of the fixed controller positions within a session.
type Slot string

const (
	P1 Slot = "p1"
	P2 Slot = "p2"
)

// Slots lists all player slots in their scan order.
var Slots = [...]Slot{P1, P2}

func ValidSlot(s Slot) bool { return s == P1 || s == P2 }

var (
	ErrNotFound       = errors.New("session not found or expired")
	ErrInvalidSlot    = errors.New("invalid player slot")
	ErrSlotTaken      = errors.New("player slot already taken")
	ErrExtensionTaken = errors.New("extension already connected")
)

// Metadata is opaque creation info attached to a session.
type Metadata struct {
	GameUrl          string `json:"gameUrl,omitempty"`
	PreferredPlayers int    `json:"preferredPlayers"`
	CreatedVia       string `json:"createdVia,omitempty"`
	UserAgent        string `json:"userAgent,omitempty"`
	Ip               string `json:"ip,omitempty"`
}

type slotState struct {
	conn      network.Uid
	connected bool
	joinedAt  time.Time
}

// Session pairs one extension endpoint with up to two controller
// endpoints. All fields are guarded by mu; sessions lock
// independently of each other and of the store table.
type Session struct {
	mu sync.Mutex

	id        Id
	createdAt time.Time
	expiresAt time.Time

	extension network.Uid
	slots     map[Slot]*slotState

	// bounded poll queue, drop-oldest
	queue *queue.Queue

	totalInputs  int
	lastActivity time.Time

	meta Metadata
}

func newSession(id Id, meta Metadata, now time.Time, ttl time.Duration) *Session {
	return &Session{
		id:        id,
		createdAt: now,
		expiresAt: now.Add(ttl),
		slots: map[Slot]*slotState{
			P1: {},
			P2: {},
		},
		queue:        queue.New(),
		lastActivity: now,
		meta:         meta,
	}
}

// newId returns 16 random bytes hex-encoded (32 chars).
func newId() Id {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err) // the OS entropy source is broken, nothing sane to do
	}
	return Id(hex.EncodeToString(b))
}

func (s *Session) Id() Id { return s.id }

func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *Session) Meta() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.expiresAt)
}

// touchLocked extends the session lifetime, mu must be held.
func (s *Session) touchLocked(ttl time.Duration, now time.Time) {
	s.expiresAt = now.Add(ttl)
	s.lastActivity = now
}

func (s *Session) connectedLocked() int {
	n := 0
	for _, st := range s.slots {
		if st.connected {
			n++
		}
	}
	return n
}

func (s *Session) readyLocked() bool {
	return s.extension != network.EmptyUid && s.connectedLocked() > 0
}
