package session

import "time"

// Sanitized session views for the introspection endpoints.
// Timestamps are Unix milliseconds, connection handles are never exposed.

type SlotView struct {
	Connected bool   `json:"connected"`
	JoinedAt  *int64 `json:"joinedAt"`
}

type StatsView struct {
	TotalInputs  int   `json:"totalInputs"`
	LastActivity int64 `json:"lastActivity"`
}

type View struct {
	SessionId             string            `json:"sessionId"`
	CreatedAt             int64             `json:"createdAt"`
	ExpiresAt             int64             `json:"expiresAt"`
	HasExtension          bool              `json:"hasExtension"`
	Players               map[Slot]SlotView `json:"players"`
	ConnectedPlayersCount int               `json:"connectedPlayersCount"`
	IsReady               bool              `json:"isReady"`
	Stats                 StatsView         `json:"stats"`
	Metadata              Metadata          `json:"metadata"`
}

// Overview is the short admin-listing form of View.
type Overview struct {
	SessionId        string `json:"sessionId"`
	CreatedAt        int64  `json:"createdAt"`
	ExpiresAt        int64  `json:"expiresAt"`
	HasExtension     bool   `json:"hasExtension"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	TotalInputs      int    `json:"totalInputs"`
	LastActivity     int64  `json:"lastActivity"`
}

// View returns the sanitized introspection form of a live session.
func (s *Store) View(id Id) (*View, bool) {
	sess := s.Get(id)
	if sess == nil {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	players := make(map[Slot]SlotView, len(sess.slots))
	for slot, st := range sess.slots {
		v := SlotView{Connected: st.connected}
		if st.connected {
			ms := st.joinedAt.UnixMilli()
			v.JoinedAt = &ms
		}
		players[slot] = v
	}
	return &View{
		SessionId:             string(sess.id),
		CreatedAt:             sess.createdAt.UnixMilli(),
		ExpiresAt:             sess.expiresAt.UnixMilli(),
		HasExtension:          sess.extension != "",
		Players:               players,
		ConnectedPlayersCount: sess.connectedLocked(),
		IsReady:               sess.readyLocked(),
		Stats:                 StatsView{TotalInputs: sess.totalInputs, LastActivity: sess.lastActivity.UnixMilli()},
		Metadata:              sess.meta,
	}, true
}

// List returns the short form of every live session.
func (s *Store) List() []Overview {
	now := time.Now()
	s.mu.Lock()
	snapshot := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess)
	}
	s.mu.Unlock()

	out := make([]Overview, 0, len(snapshot))
	for _, sess := range snapshot {
		sess.mu.Lock()
		if now.After(sess.expiresAt) {
			sess.mu.Unlock()
			continue
		}
		out = append(out, Overview{
			SessionId:        string(sess.id),
			CreatedAt:        sess.createdAt.UnixMilli(),
			ExpiresAt:        sess.expiresAt.UnixMilli(),
			HasExtension:     sess.extension != "",
			ConnectedPlayers: sess.connectedLocked(),
			TotalInputs:      sess.totalInputs,
			LastActivity:     sess.lastActivity.UnixMilli(),
		})
		sess.mu.Unlock()
	}
	return out
}
