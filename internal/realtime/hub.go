package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"courseflow-backend/internal/events"
	"courseflow-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait     = 10 * time.Second
	sweepInterval = 30 * time.Second
)

// ProgressStore persists inbound progress reports before they are fanned
// back out. Satisfied by repository.ProgressRepo.
type ProgressStore interface {
	Upsert(ctx context.Context, userID, courseID uuid.UUID, percentage float64, lastModuleID *uuid.UUID) (*models.CourseProgress, error)
}

// Hub owns the WebSocket endpoint: it authenticates handshakes, runs each
// connection's read/write pumps, routes inbound frames, and sweeps
// connections that stopped answering pings. Room membership lives only as
// long as the connection — clients must rejoin after every reconnect.
type Hub struct {
	registry  *Registry
	rooms     *RoomManager
	publisher *Publisher
	progress  ProgressStore
	jwtSecret []byte

	// Tunables, set before Start.
	SendBuffer  int
	IdleTimeout time.Duration
	MaxMessage  int64

	stopChan chan struct{}
}

func NewHub(registry *Registry, rooms *RoomManager, publisher *Publisher, progress ProgressStore, jwtSecret string) *Hub {
	return &Hub{
		registry:    registry,
		rooms:       rooms,
		publisher:   publisher,
		progress:    progress,
		jwtSecret:   []byte(jwtSecret),
		SendBuffer:  64,
		IdleTimeout: 90 * time.Second,
		MaxMessage:  4096,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the idle-connection sweeper.
func (h *Hub) Start() {
	go h.sweepLoop()
}

func (h *Hub) Stop() {
	select {
	case <-h.stopChan:
		return
	default:
		close(h.stopChan)
	}
}

// HandleWebSocket upgrades an authenticated handshake into a registered
// connection. A bad token is rejected before the upgrade, so the connection
// never reaches the registry.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userIDStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: WebSocket upgrade failed: %v", err)
		return
	}

	conn := newConnection(userID, ws, h.SendBuffer)
	h.registry.Register(conn)

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Hub) readPump(c *Connection) {
	defer func() {
		h.registry.Unregister(c.ID)
		c.closeSend()
	}()

	c.ws.SetReadLimit(h.MaxMessage)
	c.ws.SetReadDeadline(time.Now().Add(h.IdleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(h.IdleTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		var frame events.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("realtime: malformed frame from connection %s: %v", c.ID, err)
			continue
		}
		h.handleInbound(c, frame)
	}
}

func (h *Hub) writePump(c *Connection) {
	pingPeriod := h.IdleTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleInbound routes a client frame. The acting user is always the
// connection's owner — user ids on inbound frames are ignored.
func (h *Hub) handleInbound(c *Connection, frame events.Frame) {
	ctx := context.Background()

	switch frame.Type {
	case events.JoinCourse:
		h.rooms.Join(c.ID, frame.CourseID)

	case events.LeaveCourse:
		h.rooms.Leave(c.ID, frame.CourseID)

	case events.ProgressUpdate:
		var payload events.ProgressPayload
		if err := events.DecodePayload(frame, &payload); err != nil {
			log.Printf("realtime: bad progress payload from connection %s: %v", c.ID, err)
			return
		}
		if h.progress != nil {
			stored, err := h.progress.Upsert(ctx, c.UserID, frame.CourseID, payload.Percentage, payload.LastModuleID)
			if err != nil {
				log.Printf("realtime: failed to persist progress for user %s: %v", c.UserID, err)
				return
			}
			// The stored row wins: persisted progress is monotonic.
			payload.Percentage = stored.Percentage
			payload.LastModuleID = stored.LastModuleID
		}
		h.publisher.PublishProgressUpdate(ctx, c.UserID, frame.CourseID, payload)

	case events.TypingStart:
		h.publisher.PublishTyping(ctx, c.UserID, frame.CourseID, true)

	case events.TypingStop:
		h.publisher.PublishTyping(ctx, c.UserID, frame.CourseID, false)

	default:
		log.Printf("realtime: unknown inbound frame type %q from connection %s", frame.Type, c.ID)
	}
}

// sweepLoop closes connections that have not proven liveness within the idle
// timeout. The read deadline usually gets there first; the sweeper is the
// backstop for sockets wedged outside the read path.
func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.IdleTimeout - sweepInterval)
			for _, c := range h.registry.Connections() {
				if c.LastSeen().Before(cutoff) {
					log.Printf("realtime: sweeping idle connection %s (user %s)", c.ID, c.UserID)
					h.registry.Unregister(c.ID)
					c.closeSend()
				}
			}
		}
	}
}
