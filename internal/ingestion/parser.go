// Package ingestion is the NATS surface of the service: it consumes sync
// requests from JetStream and publishes completion notices for downstream
// consumers.
package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/syncer"
)

// syncRequestJSON is the wire format of one sync request. Field names use
// camelCase to match the upstream producers.
type syncRequestJSON struct {
	PositionID      string `json:"positionId"`
	ForceFullResync bool   `json:"forceFullResync,omitempty"`
	RequestedBy     string `json:"requestedBy,omitempty"`
}

// ParseSyncRequest validates and converts a raw request payload.
func ParseSyncRequest(data []byte) (syncer.Request, error) {
	var j syncRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return syncer.Request{}, fmt.Errorf("parse sync request: %w", err)
	}

	positionID, err := uuid.Parse(j.PositionID)
	if err != nil {
		return syncer.Request{}, fmt.Errorf("parse positionId: %w", err)
	}

	by := j.RequestedBy
	if by == "" {
		by = "nats"
	}

	return syncer.Request{
		PositionID:      positionID,
		ForceFullResync: j.ForceFullResync,
		TriggeredBy:     by,
	}, nil
}
