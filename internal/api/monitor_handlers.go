package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

type sessionResponse struct {
	OwnerID       string `json:"ownerId"`
	Authenticated bool   `json:"authenticated"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.SignIn(ownerFrom(r.Context()))
	state := s.deps.Session.Current()
	writeJSON(w, http.StatusOK, sessionResponse{OwnerID: state.OwnerID, Authenticated: state.Authenticated})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if s.deps.Session.OwnerID() == ownerFrom(r.Context()) {
		s.deps.Session.SignOut()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getMonitor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Monitor.View())
}

func (s *Server) startMonitor(w http.ResponseWriter, r *http.Request) {
	s.deps.Monitor.Start()
	writeJSON(w, http.StatusAccepted, s.deps.Monitor.View())
}

func (s *Server) stopMonitor(w http.ResponseWriter, r *http.Request) {
	s.deps.Monitor.Stop()
	writeJSON(w, http.StatusOK, s.deps.Monitor.View())
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Monitor.View().History)
}

// monitorStream pushes views, notifications and alerts for the caller until
// either side closes the connection.
func (s *Server) monitorStream(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}
	defer conn.Close()

	events, cancel := s.deps.Events.Subscribe(owner)
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.logger.Info("websocket client connected", zap.String("owner_id", owner))
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				s.logger.Info("websocket client disconnected", zap.String("owner_id", owner))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
