package ingestion_test

import (
	"testing"

	"github.com/0xNedAlbo/midcurve-services-sub004/internal/ingestion"
)

func TestParseSyncRequest(t *testing.T) {
	data := []byte(`{
		"positionId": "550e8400-e29b-41d4-a716-446655440000",
		"forceFullResync": true,
		"requestedBy": "ops-console"
	}`)

	req, err := ingestion.ParseSyncRequest(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if req.PositionID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("position id: got %s", req.PositionID)
	}
	if !req.ForceFullResync {
		t.Error("forceFullResync not carried over")
	}
	if req.TriggeredBy != "ops-console" {
		t.Errorf("triggered by: got %s, want ops-console", req.TriggeredBy)
	}
}

func TestParseSyncRequest_Defaults(t *testing.T) {
	req, err := ingestion.ParseSyncRequest([]byte(`{"positionId":"550e8400-e29b-41d4-a716-446655440000"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.ForceFullResync {
		t.Error("forceFullResync must default to false")
	}
	if req.TriggeredBy != "nats" {
		t.Errorf("triggered by: got %s, want nats", req.TriggeredBy)
	}
}

func TestParseSyncRequest_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"missing position id", `{}`},
		{"malformed position id", `{"positionId":"not-a-uuid"}`},
	}
	for _, tc := range cases {
		if _, err := ingestion.ParseSyncRequest([]byte(tc.data)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
