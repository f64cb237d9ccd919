package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/metrics"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

const streamWriteWait = 5 * time.Second

// streamStatus handles GET /v1/scans/stream. It upgrades to a websocket and
// pushes a status snapshot whenever it changes, closing normally once no scan
// is running. A client that connects while idle receives one snapshot.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", zap.Error(err))
		return
	}
	defer conn.Close()
	metrics.IncStreamClients()
	defer metrics.DecStreamClients()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Inbound frames are discarded; a read error means the client left.
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.Server.StreamInterval)
	defer ticker.Stop()

	var last *streamKey
	for {
		snap := s.scanner.Status()
		key := keyOf(snap)
		if last == nil || *last != key {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(toStatusDTO(snap)); err != nil {
				s.logger.Debug("stream client gone", zap.Error(err))
				return
			}
			last = &key
		}
		if !snap.IsRunning {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type streamKey struct {
	id            string
	status        scan.Status
	stopRequested bool
	results       int
	counters      scan.Counters
}

func keyOf(snap scan.Snapshot) streamKey {
	k := streamKey{status: snap.Status, stopRequested: snap.StopRequested, results: snap.ResultCount}
	if snap.Record != nil {
		k.id = snap.Record.ID
		k.counters = snap.Record.Counters
	}
	return k
}
