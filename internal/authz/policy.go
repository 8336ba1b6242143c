package authz

import "github.com/nerrad567/lexgate-core/internal/identity"

// Scope is how much of its organization's case set a role can see.
type Scope int

const (
	// ScopeNone grants nothing (unknown roles).
	ScopeNone Scope = iota
	// ScopeOrganization grants every case in the organization.
	ScopeOrganization
	// ScopeAssigned grants cases the caller is assigned to.
	ScopeAssigned
	// ScopeNamedParty grants cases naming the caller as client.
	ScopeNamedParty
)

// casePolicy is the single role table for case-level access. Documents and
// messages inherit the decision of their case.
var casePolicy = map[identity.Role]Scope{
	identity.RoleOwnerAdmin: ScopeOrganization,
	identity.RoleStaffAdmin: ScopeOrganization,
	identity.RoleLawyer:     ScopeAssigned,
	identity.RoleAnalyst:    ScopeAssigned,
	identity.RoleClient:     ScopeNamedParty,
}

// CaseScope returns the case scope for a role.
func CaseScope(role identity.Role) Scope {
	return casePolicy[role]
}

// caseFacts are the per-case relationships the policy may consult.
type caseFacts struct {
	assigned   bool
	namedParty bool
}

// decideCase applies the role policy to a case already known to be in the
// caller's organization.
func decideCase(role identity.Role, facts caseFacts) Decision {
	switch CaseScope(role) {
	case ScopeOrganization:
		return Allowed
	case ScopeAssigned:
		if facts.assigned {
			return Allowed
		}
	case ScopeNamedParty:
		if facts.namedParty {
			return Allowed
		}
	}
	return Denied
}

// decideDocument derives document access from its case.
func decideDocument(caseDecision Decision) Decision {
	return caseDecision
}

// decideMessage derives message access from its case.
func decideMessage(caseDecision Decision) Decision {
	return caseDecision
}

// decideOrganization allows members to see their own organization only.
func decideOrganization(callerOrg, targetOrg string) Decision {
	if callerOrg != targetOrg {
		return NotFound
	}
	return Allowed
}
