package defs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message types
const (
	// worker → server
	MsgHeartbeat        = "heartbeat"
	MsgOperationStarted = "operation_started"
	MsgProgress         = "progress"
	MsgComplete         = "complete"

	// server → worker
	MsgOperation   = "operation"
	MsgClaimStatus = "claim_status"
	MsgError       = "error"

	// server → observers
	MsgWorkersUpdate = "workers_update"
	MsgWorkerStatus  = "worker_status"
)

// Connection constants
const (
	PingInterval   = 30 * time.Second
	PongWait       = 60 * time.Second
	WriteWait      = 10 * time.Second
	SendBufferSize = 256
	MaxMessageSize = 1 << 20
)

// Broadcast groups
const (
	ObserverWorkersGroup = "observers:workers"
)

func WorkerGroup(clientID string) string {
	return "worker:" + clientID
}

func UserStatusGroup(userID string) string {
	return "observers:user:" + userID
}

// Envelope wraps every message on every channel
type Envelope struct {
	Type          string          `json:"type"`
	MessageID     string          `json:"message_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a serialized envelope around payload
func Encode(msgType, correlationID string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{
		Type:          msgType,
		MessageID:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       raw,
	})
}

// Decode parses an inbound envelope
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope without type")
	}
	return &env, nil
}
