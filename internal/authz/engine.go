package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/lexgate-core/internal/identity"
)

// MembershipChecker re-reads membership status at decision time.
type MembershipChecker interface {
	ActiveMembership(ctx context.Context, userID, orgID string) (*identity.Membership, error)
}

// Recorder receives decision counts. *metrics.Metrics satisfies it.
type Recorder interface {
	AuthzDecision(resource, decision string)
}

// Sink receives decision samples for time-series storage.
// *influxdb.Client satisfies it.
type Sink interface {
	WriteAuthzDecision(resource, decision, orgID, role string, latency time.Duration)
}

// Config holds optional engine collaborators.
type Config struct {
	Recorder Recorder
	Sink     Sink
	Logger   *slog.Logger
}

// Engine answers whether a resolved identity may act on a resource.
//
// Checks run in a fixed order: the resource must exist in the caller's
// organization (otherwise NotFound), the caller's membership in that
// organization must still be active (otherwise Denied), and finally the
// role policy applies.
type Engine struct {
	cases       CaseRepository
	assignments AssignmentRepository
	members     MembershipChecker
	cfg         Config
}

// NewEngine creates an authorization engine.
func NewEngine(cases CaseRepository, assignments AssignmentRepository, members MembershipChecker, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cases: cases, assignments: assignments, members: members, cfg: cfg}
}

// Cases exposes the case repository for read paths.
func (e *Engine) Cases() CaseRepository {
	return e.cases
}

// Assignments exposes the assignment repository for admin paths.
func (e *Engine) Assignments() AssignmentRepository {
	return e.assignments
}

// CanAccessCase decides access to a case. On Allowed the case is returned.
func (e *Engine) CanAccessCase(ctx context.Context, id *identity.Identity, caseID string) (Decision, *Case, error) {
	start := time.Now()
	d, c, err := e.caseDecision(ctx, id, caseID)
	if err != nil {
		return NotFound, nil, err
	}
	e.record(ResourceCase, d, id, start)
	if d != Allowed {
		return d, nil, nil
	}
	return d, c, nil
}

// CanAccessDocument decides access to a document through its case.
func (e *Engine) CanAccessDocument(ctx context.Context, id *identity.Identity, documentID string) (Decision, *Document, error) {
	start := time.Now()
	orgID, err := orgOf(id)
	if err != nil {
		return NotFound, nil, err
	}

	doc, err := e.cases.GetDocument(ctx, orgID, documentID)
	if errors.Is(err, ErrNotFound) {
		e.record(ResourceDocument, NotFound, id, start)
		return NotFound, nil, nil
	}
	if err != nil {
		return NotFound, nil, fmt.Errorf("loading document: %w", err)
	}

	cd, _, err := e.caseDecision(ctx, id, doc.CaseID)
	if err != nil {
		return NotFound, nil, err
	}
	d := decideDocument(cd)
	e.record(ResourceDocument, d, id, start)
	if d != Allowed {
		return d, nil, nil
	}
	return d, doc, nil
}

// CanAccessMessage decides access to a message through its case.
func (e *Engine) CanAccessMessage(ctx context.Context, id *identity.Identity, messageID string) (Decision, *Message, error) {
	start := time.Now()
	orgID, err := orgOf(id)
	if err != nil {
		return NotFound, nil, err
	}

	msg, err := e.cases.GetMessage(ctx, orgID, messageID)
	if errors.Is(err, ErrNotFound) {
		e.record(ResourceMessage, NotFound, id, start)
		return NotFound, nil, nil
	}
	if err != nil {
		return NotFound, nil, fmt.Errorf("loading message: %w", err)
	}

	cd, _, err := e.caseDecision(ctx, id, msg.CaseID)
	if err != nil {
		return NotFound, nil, err
	}
	d := decideMessage(cd)
	e.record(ResourceMessage, d, id, start)
	if d != Allowed {
		return d, nil, nil
	}
	return d, msg, nil
}

// CanAccessOrganization decides whether the identity may view an
// organization's records. Other tenants are reported as NotFound.
func (e *Engine) CanAccessOrganization(ctx context.Context, id *identity.Identity, orgID string) (Decision, error) {
	start := time.Now()
	callerOrg, err := orgOf(id)
	if err != nil {
		return NotFound, err
	}

	d := decideOrganization(callerOrg, orgID)
	if d == Allowed {
		active, err := e.activeMember(ctx, id.UserID, callerOrg)
		if err != nil {
			return NotFound, err
		}
		if !active {
			d = Denied
		}
	}
	e.record(ResourceOrganization, d, id, start)
	return d, nil
}

func (e *Engine) caseDecision(ctx context.Context, id *identity.Identity, caseID string) (Decision, *Case, error) {
	orgID, err := orgOf(id)
	if err != nil {
		return NotFound, nil, err
	}

	c, err := e.cases.GetCase(ctx, orgID, caseID)
	if errors.Is(err, ErrNotFound) {
		return NotFound, nil, nil
	}
	if err != nil {
		return NotFound, nil, fmt.Errorf("loading case: %w", err)
	}

	active, err := e.activeMember(ctx, id.UserID, orgID)
	if err != nil {
		return NotFound, nil, err
	}
	if !active {
		return Denied, nil, nil
	}

	facts := caseFacts{namedParty: c.ClientUserID != "" && c.ClientUserID == id.UserID}
	if CaseScope(id.Role()) == ScopeAssigned {
		facts.assigned, err = e.assignments.IsAssigned(ctx, id.UserID, c.ID)
		if err != nil {
			return NotFound, nil, fmt.Errorf("checking assignment: %w", err)
		}
	}
	return decideCase(id.Role(), facts), c, nil
}

func (e *Engine) activeMember(ctx context.Context, userID, orgID string) (bool, error) {
	_, err := e.members.ActiveMembership(ctx, userID, orgID)
	if errors.Is(err, identity.ErrMembershipNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return true, nil
}

func (e *Engine) record(resource string, d Decision, id *identity.Identity, start time.Time) {
	if e.cfg.Recorder != nil {
		e.cfg.Recorder.AuthzDecision(resource, d.String())
	}
	if e.cfg.Sink != nil {
		e.cfg.Sink.WriteAuthzDecision(resource, d.String(), id.OrganizationID(), string(id.Role()), time.Since(start))
	}
	if d != Allowed {
		e.cfg.Logger.Debug("access decision",
			"resource", resource,
			"decision", d.String(),
			"user_id", id.UserID,
		)
	}
}

func orgOf(id *identity.Identity) (string, error) {
	if id == nil || id.OrganizationID() == "" {
		return "", ErrNoOrganization
	}
	return id.OrganizationID(), nil
}
