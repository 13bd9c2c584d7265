package model

import (
	"time"
)

// OriginHTTPAPI tags entries injected through the control plane.
const OriginHTTPAPI = "http-api"

const socketOriginPrefix = "socket:"

// SocketOrigin returns the origin tag for a message received from a socket client.
func SocketOrigin(clientID string) string {
	return socketOriginPrefix + clientID
}

// HistoryEntry is one relayed message retained in the history log.
type HistoryEntry struct {
	ID      int64     `json:"id"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
	Origin  string    `json:"origin"`
}

// ConnectionRecord describes one socket connection in the connection journal.
type ConnectionRecord struct {
	ClientID         string     `json:"clientId"`
	RemoteAddr       string     `json:"remoteAddr"`
	ConnectedAt      time.Time  `json:"connectedAt"`
	DisconnectedAt   *time.Time `json:"disconnectedAt,omitempty"`
	MessagesReceived int64      `json:"messagesReceived"`
}

// Open reports whether the connection has not been observed closing yet.
func (r *ConnectionRecord) Open() bool {
	return r.DisconnectedAt == nil
}
