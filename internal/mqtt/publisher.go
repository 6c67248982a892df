package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"thermbridge/internal/bridge"
	"thermbridge/internal/coordinator"
)

// DefaultTopicPrefix roots the topic tree when no prefix is configured.
const DefaultTopicPrefix = "thermbridge"

// bridgeStatus is the availability payload on the per-home bridge topic.
type bridgeStatus struct {
	OK        bool       `json:"ok"`
	Stale     bool       `json:"stale"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// StatePublisher mirrors refresh results onto retained MQTT topics:
//
//	<prefix>/<home_id>/rooms/<room_id>    room state
//	<prefix>/<home_id>/modules/<mod_id>   module state
//	<prefix>/<home_id>/bridge             availability and staleness
//
// Stale refreshes update only the bridge topic; the retained room and
// module states are still the latest good data.
type StatePublisher struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewStatePublisher creates a publisher rooted at prefix (empty selects
// the default).
func NewStatePublisher(pub Publisher, prefix string, logger *slog.Logger) *StatePublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &StatePublisher{
		pub:    pub,
		prefix: prefix,
		logger: logger.With("component", "mqtt"),
	}
}

// OnRefresh publishes the outcome of one refresh cycle. Broker failures
// are logged, never propagated: a flaky broker must not disturb polling.
func (p *StatePublisher) OnRefresh(homeID string, snap *coordinator.Snapshot, err error) {
	status := bridgeStatus{OK: err == nil}
	if snap != nil {
		ts := snap.Timestamp
		status.Timestamp = &ts
		status.Stale = snap.Stale
		status.LastError = snap.LastError
	}
	if err != nil {
		status.LastError = err.Error()
	}

	if err == nil && snap != nil && !snap.Stale {
		for _, room := range bridge.RoomViews(homeID, snap) {
			topic := fmt.Sprintf("%s/%s/rooms/%s", p.prefix, homeID, room.ID)
			p.publishJSON(topic, room)
		}
		for _, mod := range bridge.ModuleViews(homeID, snap) {
			topic := fmt.Sprintf("%s/%s/modules/%s", p.prefix, homeID, mod.ID)
			p.publishJSON(topic, mod)
		}
	}

	p.publishJSON(fmt.Sprintf("%s/%s/bridge", p.prefix, homeID), status)
}

func (p *StatePublisher) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to encode state payload", "topic", topic, "error", err)
		return
	}
	if err := p.pub.Publish(topic, payload, true); err != nil {
		p.logger.Warn("Failed to publish state", "topic", topic, "error", err)
	}
}
