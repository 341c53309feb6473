package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aatrooox/zotepad/internal/netutil"
	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

// envelope wraps every response body.
type envelope struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Message *string `json:"message"`
}

// StateData is the /state response payload.
type StateData struct {
	Version       int64  `json:"version"`
	ServerVersion string `json:"server_version"`
	Paired        bool   `json:"paired"`
}

// PullData is the /pull response payload. NextVersion is present only
// when the page was full and more changes may remain.
type PullData struct {
	Changes       []*zsync.Change `json:"changes"`
	NextVersion   *int64          `json:"next_version,omitempty"`
	ServerVersion int64           `json:"server_version"`
}

// PushRequest is the /push request body.
type PushRequest struct {
	Table         string          `json:"table"`
	Changes       []*zsync.Change `json:"changes"`
	ClientVersion int64           `json:"client_version"`
}

// PushData is the /push response payload.
type PushData struct {
	Applied       int   `json:"applied"`
	ServerVersion int64 `json:"server_version"`
	Conflict      bool  `json:"conflict"`
}

// HealthData is the /health response payload.
type HealthData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ServerIP  string `json:"server_ip"`
}

func writeJSON(w http.ResponseWriter, status int, success bool, data any, message string) {
	env := envelope{Success: success, Data: data}
	if message != "" {
		env.Message = &message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, true, data, "")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, false, nil, message)
}

// authorize checks the bearer token. The Bearer prefix is optional;
// the mobile client sends a bare token.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token != s.cfg.Token {
		s.logger.Printf("Rejected %s %s: bad token", r.Method, r.URL.Path)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

// handleState reports the current replication position.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	st, err := store.Open(s.cfg.DatabasePath)
	if err != nil {
		s.logger.Printf("State: failed to open store: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	defer func() { _ = st.Close() }()

	maxVersion, err := st.GlobalMaxVersion(r.Context())
	if err != nil {
		s.logger.Printf("State: failed to read max version: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	s.alloc.AdvanceTo(maxVersion)

	writeOK(w, StateData{
		Version:       s.alloc.Current(),
		ServerVersion: s.cfg.BuildVersion,
		Paired:        s.paired(),
	})
}

// handlePull returns a page of changes for one table.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	q := r.URL.Query()
	table := q.Get("table")
	if table == "" {
		table = "notes"
	}
	since, _ := strconv.ParseInt(q.Get("since_version"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	limit = zsync.ClampLimit(limit)

	// since_version is inclusive on the wire: a client resumes by
	// sending next_version back verbatim. The loader's lower bound is
	// exclusive, so shift by one.
	loaderSince := since - 1
	if loaderSince < 0 {
		loaderSince = 0
	}

	st, err := store.Open(s.cfg.DatabasePath)
	if err != nil {
		s.logger.Printf("Pull: failed to open store: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	defer func() { _ = st.Close() }()

	changes, err := zsync.LoadChanges(r.Context(), st, table, loaderSince, limit, s.logger)
	if err != nil {
		s.logger.Printf("Pull: failed to load changes for %s: %v", table, err)
		writeError(w, http.StatusInternalServerError, "failed to load changes")
		return
	}

	maxVersion, err := st.GlobalMaxVersion(r.Context())
	if err != nil {
		s.logger.Printf("Pull: failed to read max version: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	s.alloc.AdvanceTo(maxVersion)

	data := PullData{
		Changes:       changes,
		ServerVersion: s.alloc.Current(),
	}
	if len(changes) == limit && limit > 0 {
		next := changes[len(changes)-1].Version + 1
		data.NextVersion = &next
	}
	if data.Changes == nil {
		data.Changes = []*zsync.Change{}
	}

	s.logger.Printf("Pull: %s since=%d -> %d changes", table, since, len(changes))
	writeOK(w, data)
}

// handlePush applies a batch of changes from the peer.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	serverVersionBefore := s.alloc.Current()

	// Whole-batch conflict gate: a client behind the server must pull
	// before its writes are accepted.
	if req.ClientVersion < serverVersionBefore {
		s.logger.Printf("Push: conflict, client at %d, server at %d", req.ClientVersion, serverVersionBefore)
		writeJSON(w, http.StatusOK, true, PushData{
			Applied:       0,
			ServerVersion: serverVersionBefore,
			Conflict:      true,
		}, "client behind server, pull first")
		return
	}

	st, err := store.Open(s.cfg.DatabasePath)
	if err != nil {
		s.logger.Printf("Push: failed to open store: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	defer func() { _ = st.Close() }()

	applied := 0
	for _, change := range req.Changes {
		if change == nil {
			continue
		}
		if change.Table == "" {
			change.Table = req.Table
		}

		ok, err := zsync.ApplyChange(r.Context(), st, s.alloc, change, s.logger)
		if err != nil {
			// Per-change write failures never abort the batch.
			s.logger.Printf("Push: failed to apply change for %s: %v", change.Table, err)
			continue
		}
		if ok {
			applied++
		}
	}

	maxVersion, err := st.GlobalMaxVersion(r.Context())
	if err != nil {
		s.logger.Printf("Push: failed to read max version: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	s.alloc.AdvanceTo(maxVersion)

	if applied > 0 {
		s.notifier.ChangesReceived(applied)
	}

	s.logger.Printf("Push: applied %d/%d changes, server at %d", applied, len(req.Changes), s.alloc.Current())
	writeOK(w, PushData{
		Applied:       applied,
		ServerVersion: s.alloc.Current(),
		Conflict:      false,
	})
}

// handleHealth answers pairing discovery probes. No auth: the mobile
// client calls this before it holds a token.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, HealthData{
		Message:   "zotepad sync server",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ServerIP:  netutil.LocalIP(),
	})
}
