/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zapperlabs/zapper/internal/events"
)

// busMessage is the wire format shared by the Redis and NATS backends.
type busMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"` // For identifying source node
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := busMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
	}
	return json.Marshal(msg)
}

func unmarshalMessage(data []byte) (*busMessage, error) {
	var msg busMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}

// topicFor names the Redis pub/sub channel for an event type.
func topicFor(eventType events.EventType) string {
	return "zapper:events:" + string(eventType)
}

// subjectFor names the NATS subject for an event type.
func subjectFor(eventType events.EventType) string {
	return "zapper.events." + string(eventType)
}

// NodeIdentity returns a stable identifier for this process, used to
// suppress echo of our own messages. An explicit instance ID wins;
// otherwise hostname plus a random suffix.
func NodeIdentity(instanceID string) string {
	if instanceID != "" {
		return instanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "zapper"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
