package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"recoverd/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard runs on a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades to WebSocket and serves live progress. Clients send
// {"action":"subscribe_scan","jobId":...} or subscribe_recovery commands and
// receive progress frames for the jobs they subscribed to.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[API] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Gorilla allows one concurrent writer; listener goroutines serialize
	// through this mutex.
	var writeMu sync.Mutex
	send := func(frame wsProgress) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Printf("[API] WebSocket write failed: %v", err)
		}
	}

	// Track subscriptions so listeners are removed when the socket closes.
	type sub struct {
		jobID    string
		id       int
		recovery bool
	}
	var subs []sub
	defer func() {
		for _, su := range subs {
			if su.recovery {
				s.recovery.RemoveProgressListener(su.jobID, su.id)
			} else {
				s.scans.RemoveProgressListener(su.jobID, su.id)
			}
		}
	}()

	s.logger.Printf("[API] WebSocket client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Printf("[API] WebSocket client disconnected: %v", err)
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if cmd.JobID == "" {
			continue
		}

		switch cmd.Action {
		case "subscribe_scan":
			id := s.scans.AddProgressListener(cmd.JobID, func(job core.ScanJob) {
				send(wsProgress{
					Type:     "scan_progress",
					JobID:    job.ID,
					Status:   job.Status,
					Progress: job.Progress,
				})
			})
			subs = append(subs, sub{jobID: cmd.JobID, id: id})

		case "subscribe_recovery":
			id := s.recovery.AddProgressListener(cmd.JobID, func(job core.RecoveryJob) {
				send(wsProgress{
					Type:     "recovery_progress",
					JobID:    job.ID,
					Status:   job.Status,
					Progress: job.Progress,
				})
			})
			subs = append(subs, sub{jobID: cmd.JobID, id: id, recovery: true})
		}
	}
}
