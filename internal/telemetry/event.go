// Package telemetry batches and ships build-completion events to an
// optional collector endpoint. It is adapted from the teacher's
// pkg/logs package, which batched "access_blocked" HTTP events for a
// long-lived Traefik middleware; here the same ring-buffer/leaky-bucket/
// shipper shape carries one event per finished database build instead.
// A mmdbtree-build invocation runs a single build, sends its one event,
// and ships it when the shipper is stopped.
package telemetry

import (
	"sync"
	"time"
)

// BuildEvent records the outcome of one Tree build-and-write cycle.
type BuildEvent struct {
	Timestamp time.Time `json:"ts"`
	EventType string    `json:"event_type"` // always "build_completed"

	BuildID      string `json:"build_id"`
	DatabaseType string `json:"database_type"`
	IPVersion    int    `json:"ip_version"`
	RecordSize   int    `json:"record_size"`
	NodeCount    int    `json:"node_count"`
	PayloadKeys  int    `json:"payload_keys"`

	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"`
}

var eventPool = sync.Pool{
	New: func() interface{} {
		return &BuildEvent{}
	},
}

// NewBuildEvent creates a build-completed event from a pool, mirroring
// the teacher's NewBlockEvent allocation-reduction idiom.
func NewBuildEvent(buildID, databaseType string, ipVersion, recordSize, nodeCount, payloadKeys int, duration time.Duration, buildErr error) *BuildEvent {
	event := eventPool.Get().(*BuildEvent)

	event.Timestamp = time.Now().UTC()
	event.EventType = "build_completed"
	event.BuildID = buildID
	event.DatabaseType = databaseType
	event.IPVersion = ipVersion
	event.RecordSize = recordSize
	event.NodeCount = nodeCount
	event.PayloadKeys = payloadKeys
	event.Duration = duration
	if buildErr != nil {
		event.Err = buildErr.Error()
	} else {
		event.Err = ""
	}

	return event
}

// ReturnToPool returns an event to the pool for reuse.
func ReturnToPool(event *BuildEvent) {
	event.BuildID = ""
	event.DatabaseType = ""
	event.Err = ""
	eventPool.Put(event)
}
