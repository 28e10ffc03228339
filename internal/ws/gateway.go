package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dm-service/internal/delivery"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
)

// Inbound event names.
const (
	eventSendMessage   = "send-message"
	eventDeleteMessage = "delete-message"
	eventJoinRoom      = "join-room"
	eventLeaveRoom     = "leave-room"
)

// ClientEvent is the inbound wire envelope.
type ClientEvent struct {
	Event     string             `json:"event"`
	Ref       string             `json:"ref,omitempty"`
	ChatID    uuid.UUID          `json:"chat_id,omitempty"`
	MessageID uuid.UUID          `json:"message_id,omitempty"`
	Content   string             `json:"content,omitempty"`
	Kind      models.MessageKind `json:"kind,omitempty"`
}

// Ack reports the outcome of an inbound event back to its sender only.
type Ack struct {
	Event  string `json:"event"`
	Ref    string `json:"ref,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

const (
	ackSuccessful = "successful"
	ackFailed     = "failed"
)

// Authenticator resolves the session cookie presented at handshake time.
type Authenticator interface {
	Authenticate(ctx context.Context, rawCookie string) (uuid.UUID, error)
}

// Gateway authenticates websocket connections with the same session
// mechanism as the HTTP API and routes their events through the delivery
// coordinator.
type Gateway struct {
	hub            *Hub
	chats          repositories.ChatRepository
	coordinator    *delivery.Coordinator
	auth           Authenticator
	cookieName     string
	handlerTimeout time.Duration
	log            *zap.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, chats repositories.ChatRepository, coordinator *delivery.Coordinator, auth Authenticator, cookieName string, log *zap.Logger) *Gateway {
	return &Gateway{
		hub:            hub,
		chats:          chats,
		coordinator:    coordinator,
		auth:           auth,
		cookieName:     cookieName,
		handlerTimeout: 10 * time.Second,
		log:            log,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates and upgrades an inbound connection. A missing cookie,
// bad signature, absent session record or identity-less record all reject the
// connection; there is no anonymous mode.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	rawCookie, err := c.Cookie(g.cookieName)
	if err != nil {
		observability.IncWSAuthFailure()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	userID, err := g.auth.Authenticate(ctx, rawCookie)
	if err != nil {
		observability.IncWSAuthFailure()
		g.log.Info("websocket handshake rejected", zap.String("ip", observability.IPFromRequest(c.Request)), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID)
	info := ConnInfo{
		ConnID:      client.ID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	g.hub.Register(client)
	go client.WritePump(g.log)

	g.joinInitialRooms(ctx, client)

	observability.IncWSActive()
	g.publishConnEvent(ctx, "ws_connect", info, "")

	go g.readLoop(client, info)
}

// joinInitialRooms subscribes the connection to one room per chat the
// identity participates in. Failure here degrades the connection (no room
// events until a manual join-room) but does not close it.
func (g *Gateway) joinInitialRooms(ctx context.Context, client *Client) {
	ids, err := g.chats.ListIDsFor(ctx, client.UserID)
	if err != nil {
		g.log.Warn("initial room join failed", zap.String("user_id", client.UserID.String()), zap.Error(err))
		g.sendEvent(client, models.ChatEvent{Event: models.EventError, Reason: "failed to load chat rooms"})
		return
	}
	for _, chatID := range ids {
		g.hub.Join(client, chatID)
	}
}

func (g *Gateway) readLoop(client *Client, info ConnInfo) {
	var closeReason string
	defer func() {
		g.hub.Unregister(client)
		observability.DecWSActive()
		g.publishConnEvent(context.Background(), "ws_disconnect", info, closeReason)
		client.conn.Close()
	}()

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.publishConnEvent(context.Background(), "ws_error", info, closeReason)
			}
			return
		}

		var evt ClientEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			g.sendAck(client, Ack{Event: "ack", Status: ackFailed, Reason: "malformed event"})
			continue
		}

		// Each event runs on its own goroutine: a slow store call for one
		// event must not stall this connection's loop or any other
		// connection.
		go g.dispatch(client, evt)
	}
}

func (g *Gateway) dispatch(client *Client, evt ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("websocket handler panic", zap.String("event", evt.Event), zap.Any("panic", r))
			g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackFailed, Reason: "internal error"})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), g.handlerTimeout)
	defer cancel()

	switch evt.Event {
	case eventSendMessage:
		_, err := g.coordinator.SendMessage(ctx, client.UserID, evt.ChatID, evt.Content, evt.Kind)
		g.ackResult(client, evt, err)

	case eventDeleteMessage:
		_, err := g.coordinator.DeleteMessage(ctx, client.UserID, evt.ChatID, evt.MessageID)
		g.ackResult(client, evt, err)

	case eventJoinRoom:
		member, err := g.chats.IsParticipant(ctx, evt.ChatID, client.UserID)
		if err != nil || !member {
			g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackFailed, Reason: "not a participant"})
			return
		}
		g.hub.Join(client, evt.ChatID)
		g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackSuccessful})

	case eventLeaveRoom:
		g.hub.Leave(client, evt.ChatID)
		g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackSuccessful})

	default:
		g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackFailed, Reason: "unknown event"})
	}
}

func (g *Gateway) ackResult(client *Client, evt ClientEvent, err error) {
	if err != nil {
		g.log.Info("websocket event failed", zap.String("event", evt.Event), zap.String("user_id", client.UserID.String()), zap.Error(err))
		g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackFailed, Reason: err.Error()})
		return
	}
	g.sendAck(client, Ack{Event: "ack", Ref: evt.Ref, Status: ackSuccessful})
}

func (g *Gateway) sendAck(client *Client, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	client.Send(payload)
}

func (g *Gateway) sendEvent(client *Client, event models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	client.Send(payload)
}

func (g *Gateway) publishConnEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSEvent(name)
	_ = observability.PublishEvent(ctx, "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID.String(),
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
