// Package sessionlayer implements the Session Layer of spec.md §4.5: the
// gin HTTP handlers that accept listener subscriptions, service heartbeats,
// and relay station events, all resolved against the session-auth and
// station-state collaborators.
package sessionlayer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ws "nhooyr.io/websocket"

	"github.com/airwave/stationd/internal/audioframe"
	"github.com/airwave/stationd/internal/catalog"
	"github.com/airwave/stationd/internal/metrics"
	"github.com/airwave/stationd/internal/sessionauth"
	"github.com/airwave/stationd/internal/station"
)

// Handlers wires the station's shared state, broadcaster fan-out, event bus
// and session-auth manager to the HTTP surface named in spec.md §6.
type Handlers struct {
	state       *station.State
	broadcaster *station.Broadcaster
	bus         *station.EventBus
	auth        *sessionauth.Manager
	maxClients  int
	queueSize   int
}

func New(state *station.State, broadcaster *station.Broadcaster, bus *station.EventBus, auth *sessionauth.Manager, maxClients, queueSize int) *Handlers {
	return &Handlers{
		state:       state,
		broadcaster: broadcaster,
		bus:         bus,
		auth:        auth,
		maxClients:  maxClients,
		queueSize:   queueSize,
	}
}

func (h *Handlers) resolveUser(c *gin.Context) (catalog.User, bool) {
	user, err := h.auth.ResolveSession(c.Request.Context(), c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return catalog.User{}, false
	}
	return user, true
}

// Stream implements GET /stream: subscribe to the fan-out bus, write the
// burst buffer's frames as catch-up, then relay every live frame until the
// client disconnects or falls behind the broadcast capacity (spec.md §4.5).
func (h *Handlers) Stream(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	if len(h.state.Listeners()) >= h.maxClients {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many listeners"})
		return
	}

	id, burst, burstUS, ch := h.broadcaster.Subscribe(h.queueSize)
	defer h.broadcaster.Unsubscribe(id)

	h.state.AddListener(user.ID, user.Username, burstUS)
	defer h.state.RemoveListener(user.ID)
	metrics.ActiveListeners.Set(float64(len(h.state.Listeners())))
	metrics.BurstBufferDepthSeconds.Set(float64(burstUS) / 1e6)

	slog.Info("listener connected", "user_id", user.ID, "username", user.Username, "burst_ms", burstUS/1000)

	w := c.Writer
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if !writeFrames(w, burst) {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Info("listener disconnected", "user_id", user.ID)
			return
		case frame, ok := <-ch:
			if !ok {
				slog.Warn("listener dropped: fan-out subscription closed", "user_id", user.ID)
				return
			}
			if !writeFrames(w, []audioframe.AudioFrame{frame}) {
				slog.Info("listener write failed, closing stream", "user_id", user.ID)
				return
			}
		}
	}
}

func writeFrames(w gin.ResponseWriter, frames []audioframe.AudioFrame) bool {
	for _, f := range frames {
		if _, err := w.Write(f.Data); err != nil {
			return false
		}
	}
	w.Flush()
	return true
}

type heartbeatRequest struct {
	ClientPositionMS int64 `json:"client_position_ms"`
}

type heartbeatResponse struct {
	DesyncMS         int64  `json:"desync_ms"`
	ServerPositionMS uint64 `json:"server_position_ms"`
	ClientBasePosMS  int64  `json:"client_base_pos_ms"`
}

// Heartbeat implements POST /heartbeat: spec.md §4.5's desync formula.
func (h *Handlers) Heartbeat(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req heartbeatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	listener, totalDurationUS, err := h.state.Heartbeat(user.ID, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listener not found, please reconnect"})
		return
	}

	burstBufferUS := listener.BurstBufferMS * 1000
	clientPositionUS := req.ClientPositionMS * 1000
	clientBaseUS := listener.StartTotalPositionUS - burstBufferUS
	clientAbsoluteUS := clientBaseUS + clientPositionUS
	desyncUS := totalDurationUS - clientAbsoluteUS

	metrics.HeartbeatDesyncSeconds.Observe(float64(desyncUS) / 1e6)

	c.JSON(http.StatusOK, heartbeatResponse{
		DesyncMS:         desyncUS / 1000,
		ServerPositionMS: uint64(totalDurationUS / 1000),
		ClientBasePosMS:  clientBaseUS / 1000,
	})
}

type listenerView struct {
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connected_at"`
	ListenTimeMS int64     `json:"listen_time_ms"`
}

// Listeners implements GET /listeners.
func (h *Handlers) Listeners(c *gin.Context) {
	if _, ok := h.resolveUser(c); !ok {
		return
	}

	now := time.Now()
	listeners := h.state.Listeners()
	out := make([]listenerView, 0, len(listeners))
	for _, l := range listeners {
		out = append(out, listenerView{
			Username:     l.Username,
			ConnectedAt:  l.ConnectedAt,
			ListenTimeMS: now.Sub(l.ConnectedAt).Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type currentSongView struct {
	SongID     int64     `json:"song_id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	Album      string    `json:"album,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// CurrentSong implements GET /song/current.
func (h *Handlers) CurrentSong(c *gin.Context) {
	if _, ok := h.resolveUser(c); !ok {
		return
	}

	current := h.state.CurrentSong()
	if current.Song.ID == 0 {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, songView(current))
}

func songView(cs station.CurrentSong) currentSongView {
	return currentSongView{
		SongID:     cs.Song.ID,
		Title:      cs.Song.Title,
		Artist:     cs.Song.Artist,
		Album:      cs.Song.Album,
		DurationMS: cs.DurationMS,
		StartedAt:  cs.StartedAt,
	}
}

// wsEnvelope is the JSON shape every event-stream message is wrapped in,
// matching spec.md §4.5: `{ type, data }`.
type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Events implements GET /ws: on open it sends the current SongChange (if
// any), then relays every subsequent StationEvent until either side closes
// the connection (spec.md §4.5).
func (h *Handlers) Events(c *gin.Context) {
	user, ok := h.resolveUser(c)
	if !ok {
		return
	}

	conn, err := ws.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("event stream: accept failed", "user_id", user.ID, "error", err)
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx := c.Request.Context()

	if current := h.state.CurrentSong(); current.Song.ID != 0 {
		if err := writeEvent(ctx, conn, station.SongChange{Song: current}); err != nil {
			return
		}
	}

	id, events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(ws.StatusNormalClosure, "event bus closed")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, ev station.StationEvent) error {
	var envelope wsEnvelope
	switch e := ev.(type) {
	case station.SongChange:
		envelope = wsEnvelope{Type: "SongChange", Data: songView(e.Song)}
	default:
		envelope = wsEnvelope{Type: "Unknown", Data: nil}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, payload)
}
