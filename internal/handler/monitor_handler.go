package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/config"
	"github.com/formforge/formforge-backend/internal/middleware"
	"github.com/formforge/formforge-backend/internal/service"
)

const (
	monitorWriteTimeout = 10 * time.Second
	monitorPingInterval = 30 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live session events for one form to its creator
// over WebSocket. Events arrive on the form's Redis pub/sub channel, pushed
// by the session service; this handler is a pure relay.
type MonitorHandler struct {
	rdb         *redis.Client
	formService *service.FormService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, formService *service.FormService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:         rdb,
		formService: formService,
		log:         log.With().Str("component", "monitor_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// MonitorStream godoc
// WS /ws/v1/forms/:form_id/monitor?token=...
// Streams session_started, violation_reported, session_submitted, and
// session_expired events as they happen.
func (h *MonitorHandler) MonitorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	formID, ok := parseUUIDParam(c, "form_id")
	if !ok {
		return
	}

	// Ownership check happens before the upgrade so the client gets a
	// proper HTTP status instead of an immediate close frame.
	if _, err := h.formService.GetOwned(c.Request.Context(), formID, claims.UserID); err != nil {
		failFromErr(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("creator_id", claims.UserID).
		Str("form_id", formID.String()).
		Logger()
	wsLog.Info().Msg("Monitor connected")

	ctx := c.Request.Context()
	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.FormMonitorChannel(formID.String()))
	defer pubsub.Close()

	// Reader goroutine: the monitor never sends application messages, but
	// reading is required to process close and pong frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(monitorPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Monitor disconnected")
			return
		case <-ctx.Done():
			return
		case msg, open := <-pubsub.Channel():
			if !open {
				wsLog.Warn().Msg("Pub/sub channel closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, closing monitor")
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
