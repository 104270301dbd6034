package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"mediadupes/internal/match"
	"mediadupes/internal/models"
	"mediadupes/internal/scan"
)

// Message types sent on /ws/scan
const (
	msgConnected = "connected"
	msgResult    = "result"
)

// wsMessage is one JSON frame of a scan stream
type wsMessage struct {
	Type     string                `json:"type"`
	Progress *models.Progress      `json:"progress,omitempty"`
	Pair     *models.DuplicatePair `json:"pair,omitempty"`
	Excluded *models.ExcludedImage `json:"excluded,omitempty"`
	Result   *models.ScanResult    `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}

const writeWait = 10 * time.Second

// handleScan scans ?folder= and streams progress, excluded images and
// pairs as they are found. The final result is persisted and sent last.
// Closing the socket cancels the scan.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		http.Error(w, "folder required", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		http.Error(w, "folder not found", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("server: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.activeClients++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.activeClients--
		s.lastActivity = time.Now()
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Any read error (including a close frame) ends the scan
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
			s.recordActivity()
		}
	}()

	send := func(m wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			cancel()
			return false
		}
		return true
	}

	if !send(wsMessage{Type: msgConnected}) {
		return
	}

	result, err := s.streamScan(ctx, folder, send)
	if err != nil {
		send(wsMessage{Type: string(models.EventError), Error: err.Error()})
		return
	}

	if !send(wsMessage{Type: msgResult, Result: result}) {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan complete"))
}

// streamScan runs the finder over folder, forwarding every event, then
// saves the sorted pairs and a history row
func (s *Server) streamScan(ctx context.Context, folder string, send func(wsMessage) bool) (*models.ScanResult, error) {
	records, err := scan.Collect(folder)
	if err != nil {
		return nil, err
	}

	result := &models.ScanResult{TotalImages: len(records)}
	for ev := range s.finder.Events(ctx, records) {
		msg := wsMessage{Type: string(ev.Type)}
		switch ev.Type {
		case models.EventError:
			return nil, ev.Err
		case models.EventProgress:
			p := ev.Progress
			msg.Progress = &p
		case models.EventPair:
			result.Pairs = append(result.Pairs, *ev.Pair)
			msg.Pair = ev.Pair
		case models.EventExcluded:
			result.Excluded = append(result.Excluded, *ev.Excluded)
			msg.Excluded = ev.Excluded
		}
		if !send(msg) {
			return nil, context.Canceled
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match.SortPairs(result.Pairs)

	if err := s.storage.SavePairs(ctx, result.Pairs); err != nil {
		return nil, err
	}
	rec := models.ScanRecord{
		Folder:      folder,
		TotalImages: result.TotalImages,
		Excluded:    len(result.Excluded),
		TotalPairs:  len(result.Pairs),
		Variant:     string(s.finder.Config().Variant),
		Threshold:   s.finder.Threshold(),
	}
	if err := s.storage.RecordScan(ctx, rec); err != nil {
		s.logger.Warn("server: failed to record scan", "folder", folder, "error", err)
	}

	return result, nil
}
