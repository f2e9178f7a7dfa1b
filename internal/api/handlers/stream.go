package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/internal/runstore"
	"github.com/wonny/sp-ranking/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// StreamHandler pushes run status over a websocket until the run is terminal
type StreamHandler struct {
	runs     *runstore.Service
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *logger.Logger
}

// NewStreamHandler creates a stream handler; allowedOrigins "*" accepts any origin
func NewStreamHandler(runs *runstore.Service, allowedOrigins []string, interval time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		runs: runs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		interval: interval,
		logger:   log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Stream handles GET /rankings/stream?run_id= (latest run when omitted)
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	runID, ok := optionalInt64(r, "run_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "run_id must be an integer")
		return
	}

	run, err := h.runs.Status(r.Context(), runID)
	if errors.Is(err, contracts.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load run for stream")
		respondError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// hijacked connections outlive the request context, so the reader cancels on disconnect
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := h.logger.WithField("run_id", run.ID)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	updates := h.runs.Watch(ctx, run.ID, h.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case u, open := <-updates:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				log.WithError(err).Debug("Stream client went away")
				return
			}
		}
	}
}
