package relay

import (
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

// Rest is the request/response boundary of the relay: session
// creation, polling, health, and the admin paths.
type Rest struct {
	conf    config.Relay
	store   *session.Store
	metrics *metrics
	log     *logger.Logger
	start   time.Time
}

func NewRest(conf config.Relay, store *session.Store, m *metrics, log *logger.Logger) *Rest {
	return &Rest{conf: conf, store: store, metrics: m, log: log, start: time.Now()}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (rs *Rest) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.log.Error().Err(err).Msg("response write fail")
	}
}

// guard converts handler panics into a logged 500 with a generic body.
func (rs *Rest) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				rs.log.Error().Msgf("recovered from %v in %v", err, r.URL.Path)
				rs.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			}
		}()
		h(w, r)
	}
}

// cors mirrors the permissive policy of the relay: anyone who knows a
// session id may talk to it from any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rs *Rest) banner(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		rs.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found"})
		return
	}
	rs.writeJSON(w, http.StatusOK, map[string]string{"message": "QRcade relay server is running"})
}

type createSessionRequest struct {
	PreferredPlayers int    `json:"preferredPlayers"`
	GameUrl          string `json:"gameUrl"`
}

type createSessionResponse struct {
	SessionId        string `json:"sessionId"`
	ControllerUrl    string `json:"controllerUrl"`
	ExpiresAt        int64  `json:"expiresAt"`
	PreferredPlayers int    `json:"preferredPlayers"`
}

func (rs *Rest) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rs.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	var rq createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rq)
	}
	if rq.PreferredPlayers != 0 && (rq.PreferredPlayers < 1 || rq.PreferredPlayers > 4) {
		rs.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "preferredPlayers must be between 1 and 4"})
		return
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	sess := rs.store.Create(session.Metadata{
		GameUrl:          rq.GameUrl,
		PreferredPlayers: rq.PreferredPlayers,
		CreatedVia:       "REST",
		UserAgent:        r.UserAgent(),
		Ip:               ip,
	})
	rs.metrics.created.Inc()
	rs.log.Info().Msgf("session %v created via REST", sess.Id())

	rs.writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionId:        string(sess.Id()),
		ControllerUrl:    rs.conf.PublicDomain + "/ctl/" + string(sess.Id()),
		ExpiresAt:        sess.ExpiresAt().UnixMilli(),
		PreferredPlayers: sess.Meta().PreferredPlayers,
	})
}

type healthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Uptime         int64  `json:"uptime"`
	ActiveSessions int    `json:"activeSessions"`
	Memory         struct {
		Used  uint64 `json:"used"`
		Total uint64 `json:"total"`
	} `json:"memory"`
}

func (rs *Rest) health(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	resp := healthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().Format(time.RFC3339),
		Uptime:         int64(time.Since(rs.start).Seconds()),
		ActiveSessions: rs.store.Len(),
	}
	resp.Memory.Used = mem.HeapAlloc / 1024 / 1024
	resp.Memory.Total = mem.HeapSys / 1024 / 1024
	rs.writeJSON(w, http.StatusOK, resp)
}

func (rs *Rest) poll(w http.ResponseWriter, r *http.Request) {
	id := session.Id(strings.TrimPrefix(r.URL.Path, "/poll/"))
	messages, ok := rs.store.Drain(id)
	if !ok {
		rs.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found or expired"})
		return
	}
	rs.writeJSON(w, http.StatusOK, messages)
}

func (rs *Rest) sessionInfo(w http.ResponseWriter, r *http.Request) {
	id := session.Id(strings.TrimPrefix(r.URL.Path, "/session/"))
	view, ok := rs.store.View(id)
	if !ok {
		rs.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found or expired"})
		return
	}
	rs.writeJSON(w, http.StatusOK, view)
}

func (rs *Rest) adminSessions(w http.ResponseWriter, _ *http.Request) {
	rs.writeJSON(w, http.StatusOK, rs.store.List())
}

type invalidateRequest struct {
	SessionId string `json:"sessionId"`
}

type invalidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (rs *Rest) invalidateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rs.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	var rq invalidateRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rq)
	}
	if rq.SessionId == "" {
		rs.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}
	if !rs.store.Delete(session.Id(rq.SessionId)) {
		rs.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found"})
		return
	}
	rs.log.Info().Msgf("admin invalidated session %v", rq.SessionId)
	rs.writeJSON(w, http.StatusOK, invalidateResponse{Success: true, Message: "Session " + rq.SessionId + " invalidated"})
}
