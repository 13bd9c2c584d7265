package model

import (
	"encoding/json"
	"time"
)

// FrameType identifies a server-generated frame.
type FrameType string

const (
	FrameTypeHistory   FrameType = "history"
	FrameTypeSystem    FrameType = "system"
	FrameTypeHeartbeat FrameType = "heartbeat"
	FrameTypeResponse  FrameType = "response"
)

// TaskTypeSave is the inbound message type acknowledged with a response frame.
const TaskTypeSave = "saveTask"

const (
	welcomeMessage = "connected to relay server"
	taskAckMessage = "task saved"
	statusSuccess  = "success"
)

// HistoryFrame replays the history log to a newly joined client.
type HistoryFrame struct {
	Type FrameType      `json:"type"`
	Data []HistoryEntry `json:"data"`
}

// SystemFrame is the welcome sent once a client is live.
type SystemFrame struct {
	Type FrameType  `json:"type"`
	Data SystemData `json:"data"`
}

// SystemData is the body of a SystemFrame.
type SystemData struct {
	Message  string    `json:"message"`
	ClientID string    `json:"clientId"`
	Time     time.Time `json:"time"`
}

// HeartbeatFrame is pushed to every client on each heartbeat tick.
type HeartbeatFrame struct {
	Type FrameType `json:"type"`
	Time time.Time `json:"time"`
}

// ResponseFrame acknowledges a task message to its sender.
type ResponseFrame struct {
	Type    FrameType       `json:"type"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	TaskID  json.RawMessage `json:"taskId,omitempty"`
	Time    time.Time       `json:"time"`
}

// NewHistoryFrame builds a replay frame for entries.
func NewHistoryFrame(entries []HistoryEntry) HistoryFrame {
	return HistoryFrame{Type: FrameTypeHistory, Data: entries}
}

// NewWelcomeFrame builds the welcome frame for clientID.
func NewWelcomeFrame(clientID string, now time.Time) SystemFrame {
	return SystemFrame{
		Type: FrameTypeSystem,
		Data: SystemData{
			Message:  welcomeMessage,
			ClientID: clientID,
			Time:     now.UTC(),
		},
	}
}

// NewHeartbeatFrame builds a keepalive frame.
func NewHeartbeatFrame(now time.Time) HeartbeatFrame {
	return HeartbeatFrame{Type: FrameTypeHeartbeat, Time: now.UTC()}
}

// NewTaskAck builds the acknowledgement for a saveTask message.
func NewTaskAck(taskID json.RawMessage, now time.Time) ResponseFrame {
	return ResponseFrame{
		Type:    FrameTypeResponse,
		Status:  statusSuccess,
		Message: taskAckMessage,
		TaskID:  taskID,
		Time:    now.UTC(),
	}
}

// inboundMessage is the subset of a client payload the relay looks at.
type inboundMessage struct {
	Type   string          `json:"type"`
	TaskID json.RawMessage `json:"taskId"`
	ID     json.RawMessage `json:"id"`
	Data   json.RawMessage `json:"data"`
}

type correlation struct {
	TaskID json.RawMessage `json:"taskId"`
	ID     json.RawMessage `json:"id"`
}

// ParseTaskRequest decodes payload and reports whether it is a saveTask
// message. The returned id is the first of taskId, id, data.taskId and
// data.id that is present, or nil. Payloads that are not JSON objects are
// not task requests.
func ParseTaskRequest(payload []byte) (json.RawMessage, bool) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, false
	}
	if msg.Type != TaskTypeSave {
		return nil, false
	}

	if present(msg.TaskID) {
		return msg.TaskID, true
	}
	if present(msg.ID) {
		return msg.ID, true
	}

	var inner correlation
	if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &inner) == nil {
		if present(inner.TaskID) {
			return inner.TaskID, true
		}
		if present(inner.ID) {
			return inner.ID, true
		}
	}
	return nil, true
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
