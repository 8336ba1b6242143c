// Package identity resolves a verified session into a Profile and enforces
// the organization and role requirements of protected operations.
//
// Failures are reported as autherr codes so that handlers can map each one
// to a redirect or an in-page message without inspecting messages. The
// precedence of the checks is documented on Resolver.RequireAuth.
//
// Post-login routing is declarative: LandingTable maps (role, membership
// role) to an entry route and ErrorRoutes maps each code to a page.
package identity
