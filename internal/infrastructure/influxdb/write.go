package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAuthz    = "authz_decisions"
	MeasurementIdentity = "identity_outcomes"
	MeasurementAuth     = "auth_events"
)

// WriteAuthzDecision records one authorization decision. Organization and
// role are tags; latency is the field.
func (c *Client) WriteAuthzDecision(resource, decision, orgID, role string, latency time.Duration) {
	c.WritePoint(MeasurementAuthz,
		map[string]string{
			"resource":        resource,
			"decision":        decision,
			"organization_id": orgID,
			"role":            role,
		},
		map[string]any{
			"latency_ms": float64(latency.Microseconds()) / 1000,
			"count":      1,
		},
	)
}

// WriteIdentityOutcome records one identity-resolution outcome. An empty
// code is stored as "ok".
func (c *Client) WriteIdentityOutcome(code string) {
	if code == "" {
		code = "ok"
	}
	c.WritePoint(MeasurementIdentity,
		map[string]string{"code": code},
		map[string]any{"count": 1},
	)
}

// WriteAuthEvent records a session lifecycle event (login, refresh, logout).
func (c *Client) WriteAuthEvent(action, outcome string) {
	c.WritePoint(MeasurementAuth,
		map[string]string{"action": action, "outcome": outcome},
		map[string]any{"count": 1},
	)
}

// WritePoint writes a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. Empty tag
// values are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	clean := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != "" {
			clean[k] = v
		}
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, clean, fields, ts))
}
