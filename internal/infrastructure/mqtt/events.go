package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuthEvent is published on Topics.AuthEvent(Action). It never carries
// tokens or passwords.
type AuthEvent struct {
	Action         string    `json:"action"`
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	EntityType     string    `json:"entity_type,omitempty"`
	EntityID       string    `json:"entity_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishAuthEvent publishes ev under its action topic.
func (c *Client) PublishAuthEvent(ev AuthEvent) error {
	if ev.Action == "" {
		return ErrInvalidTopic
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return c.PublishJSON(Topics{}.AuthEvent(ev.Action), ev)
}

// RevokeCommand asks the service to revoke a membership. OrganizationID
// must match the membership's organization.
type RevokeCommand struct {
	MembershipID   string `json:"membership_id"`
	OrganizationID string `json:"organization_id"`
	RequestedBy    string `json:"requested_by,omitempty"`
}

// DecodeRevokeCommand parses and validates a revocation command payload.
func DecodeRevokeCommand(payload []byte) (RevokeCommand, error) {
	var cmd RevokeCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return RevokeCommand{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.MembershipID == "" || cmd.OrganizationID == "" {
		return RevokeCommand{}, fmt.Errorf("%w: membership_id and organization_id are required", ErrInvalidCommand)
	}
	return cmd, nil
}

// SubscribeRevocations routes decoded revocation commands to fn. Invalid
// payloads are reported as handler errors and dropped.
func (c *Client) SubscribeRevocations(fn func(RevokeCommand) error) error {
	return c.Subscribe(Topics{}.MembershipRevoke(), c.qos(), func(_ string, payload []byte) error {
		cmd, err := DecodeRevokeCommand(payload)
		if err != nil {
			return err
		}
		return fn(cmd)
	})
}
