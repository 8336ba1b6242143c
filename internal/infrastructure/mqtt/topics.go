package mqtt

import "fmt"

// TopicPrefix is the root of every LexGate topic.
const TopicPrefix = "lexgate"

// Topics builds LexGate topic names.
//
//	lexgate/system/status                  retained online/offline status
//	lexgate/events/auth/{action}           session and authorization events
//	lexgate/commands/membership/revoke     revocation requests from admin tooling
type Topics struct{}

// SystemStatus is the retained service status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AuthEvent is the topic for one auth event action, e.g. lexgate/events/auth/login.
func (Topics) AuthEvent(action string) string {
	return fmt.Sprintf("%s/events/auth/%s", TopicPrefix, action)
}

// AllAuthEvents matches every auth event.
func (Topics) AllAuthEvents() string {
	return TopicPrefix + "/events/auth/+"
}

// MembershipRevoke is the command topic for membership revocation.
func (Topics) MembershipRevoke() string {
	return TopicPrefix + "/commands/membership/revoke"
}
