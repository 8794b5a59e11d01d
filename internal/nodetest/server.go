// Package nodetest runs an in-process audio node for tests. It speaks
// enough of the socket and REST protocol to drive the client: it sends a
// ready frame on connect, records every player patch and serves canned
// load results.
package nodetest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/gorilla/websocket"
)

// Patch is one recorded player update.
type Patch struct {
	SessionID string
	GuildID   string
	Body      protocol.PlayerPatch
}

type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu          sync.Mutex
	sessionID   string
	sessions    int
	conns       []*websocket.Conn
	handshakes  []http.Header
	patches     []Patch
	destroyed   []string
	resumes     []protocol.SessionUpdate
	loads       map[string]protocol.LoadResult
	infoDelay   time.Duration
	rejectDials bool
	dials       int
	patchStatus int
}

func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{loads: make(map[string]protocol.LoadResult)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v4/websocket", s.handleSocket)
	mux.HandleFunc("GET /v4/info", s.handleInfo)
	mux.HandleFunc("GET /v4/stats", s.handleStats)
	mux.HandleFunc("GET /v4/loadtracks", s.handleLoad)
	mux.HandleFunc("PATCH /v4/sessions/{session}", s.handleSession)
	mux.HandleFunc("PATCH /v4/sessions/{session}/players/{guild}", s.handlePatch)
	mux.HandleFunc("DELETE /v4/sessions/{session}/players/{guild}", s.handleDestroy)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Host and Port split the listener address for node options.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

func (s *Server) Close() {
	s.DropConnections()
	s.Server.Close()
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	reject := s.rejectDials
	s.handshakes = append(s.handshakes, r.Header.Clone())
	s.mu.Unlock()

	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	resumed := s.sessionID != "" && r.Header.Get("Session-Id") == s.sessionID
	if !resumed {
		s.sessions++
		s.sessionID = fmt.Sprintf("session-%d", s.sessions)
	}
	s.conns = append(s.conns, conn)
	ready := map[string]any{"op": "ready", "resumed": resumed, "sessionId": s.sessionID}
	err = conn.WriteJSON(ready)
	s.mu.Unlock()
	if err != nil {
		return
	}

	// Drain until the client goes away so control frames are answered.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.infoDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, protocol.Info{Version: protocol.Version{Semver: "4.0.8", Major: 4}, SourceManagers: []string{"youtube"}})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.Stats{CPU: protocol.CPU{Cores: 4}})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	result, ok := s.loads[r.URL.Query().Get("identifier")]
	s.mu.Unlock()
	if !ok {
		result = protocol.LoadResult{LoadType: protocol.LoadTypeEmpty, Data: json.RawMessage(`{}`)}
	}
	writeJSON(w, result)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var update protocol.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.resumes = append(s.resumes, update)
	s.mu.Unlock()
	writeJSON(w, update)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var body protocol.PlayerPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	status := s.patchStatus
	s.patches = append(s.patches, Patch{
		SessionID: r.PathValue("session"),
		GuildID:   r.PathValue("guild"),
		Body:      body,
	})
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		writeJSON(w, map[string]any{"status": status, "message": http.StatusText(status)})
		return
	}
	writeJSON(w, protocol.Player{GuildID: r.PathValue("guild")})
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.destroyed = append(s.destroyed, r.PathValue("guild"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Send writes a frame to every open connection.
func (s *Server) Send(frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

// SendRaw writes data as a text message to every open connection.
func (s *Server) SendRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every open socket, as a crashing node would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

// RejectDials makes the socket endpoint fail the upgrade.
func (s *Server) RejectDials(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectDials = reject
}

func (s *Server) SetInfoDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoDelay = d
}

// SetPatchStatus makes player patches fail with status. Zero restores
// success.
func (s *Server) SetPatchStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchStatus = status
}

func (s *Server) AddLoadResult(identifier string, result protocol.LoadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[identifier] = result
}

func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *Server) Handshakes() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.handshakes...)
}

func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

func (s *Server) Destroyed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.destroyed...)
}

func (s *Server) SessionUpdates() []protocol.SessionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.SessionUpdate(nil), s.resumes...)
}

// Track builds a resolved track for tests.
func Track(encoded, title string) protocol.Track {
	return protocol.Track{
		Encoded: encoded,
		Info: protocol.TrackInfo{
			Identifier: encoded,
			Title:      title,
			Author:     "nodetest",
			Length:     180_000,
			IsSeekable: true,
			SourceName: "youtube",
		},
	}
}

// SearchResult wraps tracks in a search load result.
func SearchResult(tracks ...protocol.Track) protocol.LoadResult {
	data, _ := json.Marshal(tracks)
	return protocol.LoadResult{LoadType: protocol.LoadTypeSearch, Data: data}
}
