package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo carries the connection metadata attached to observability events.
type ConnInfo struct {
	ConnID      string
	UserID      uuid.UUID
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
