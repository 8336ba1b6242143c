package identity

import (
	"net/url"

	"github.com/nerrad567/lexgate-core/internal/autherr"
)

// LandingRule maps a role, optionally narrowed by membership role, to the
// route a caller lands on after login. An empty MembershipRole matches any.
type LandingRule struct {
	Role           Role
	MembershipRole MembershipRole
	Route          string
}

// FallbackLanding is used when no rule matches.
const FallbackLanding = "/dashboard/overview"

// LandingTable is evaluated top to bottom; the first match wins.
var LandingTable = []LandingRule{
	{Role: RoleOwnerAdmin, MembershipRole: MembershipOwner, Route: "/dashboard/organization"},
	{Role: RoleOwnerAdmin, Route: "/dashboard/admin"},
	{Role: RoleStaffAdmin, Route: "/dashboard/admin"},
	{Role: RoleLawyer, Route: "/dashboard/cases"},
	{Role: RoleAnalyst, Route: "/dashboard/cases"},
	{Role: RoleClient, Route: "/dashboard/portal"},
}

// LandingRoute returns the entry route for a resolved profile.
func LandingRoute(p *Profile) string {
	if p == nil {
		return FallbackLanding
	}
	for _, rule := range LandingTable {
		if rule.Role != p.Role {
			continue
		}
		if rule.MembershipRole != "" && rule.MembershipRole != p.MembershipRole {
			continue
		}
		return rule.Route
	}
	return FallbackLanding
}

// ErrorRoutes maps each taxonomy code to the page a browser request is sent
// to. Codes absent from the table fall back to the login page.
var ErrorRoutes = map[autherr.Code]string{
	autherr.CodeNoSession:              "/login",
	autherr.CodeNoOrganization:         "/onboarding/organization",
	autherr.CodeNoActiveMembership:     "/onboarding/organization",
	autherr.CodeOrgAccessDenied:        "/unauthorized",
	autherr.CodePermissionDenied:       "/unauthorized",
	autherr.CodePKCEStateMismatch:      "/login",
	autherr.CodeCryptoIntegrityFailure: "/login",
}

// ErrorRedirect returns the redirect target for a taxonomy error raised on a
// page request. The code is attached as ?error= so the page can render the
// matching banner; NO_SESSION carries redirectTo instead.
func ErrorRedirect(err error, original string) string {
	code := autherr.CodeOf(err)
	route, ok := ErrorRoutes[code]
	if !ok {
		route = "/login"
	}

	q := url.Values{}
	if code == autherr.CodeNoSession || code == "" {
		if original != "" {
			q.Set("redirectTo", original)
		}
	} else {
		q.Set("error", string(code))
	}
	if len(q) == 0 {
		return route
	}
	return route + "?" + q.Encode()
}
