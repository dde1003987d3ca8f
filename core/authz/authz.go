// Package authz decides, per navigation, whether to render a view or where to redirect.
package authz

import (
	"github.com/eduweave/eduweave/core/user"
)

// Outcome of an authorization decision.
type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeRedirect
	OutcomeRender
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeRender:
		return "render"
	default:
		return "unknown"
	}
}

type access int

const (
	accessPublic access = iota
	accessAuthenticated
	accessRole
)

// Requirement describes who may see a view.
type Requirement struct {
	access access
	role   user.Role
}

// Public views render whatever the session state.
func Public() Requirement { return Requirement{access: accessPublic} }

// Authenticated views render for any signed-in user.
func Authenticated() Requirement { return Requirement{access: accessAuthenticated} }

// RequireRole views render only for signed-in users of the given role.
func RequireRole(r user.Role) Requirement { return Requirement{access: accessRole, role: r} }

// Role returns the required role and whether one is required at all.
func (r Requirement) Role() (user.Role, bool) {
	return r.role, r.access == accessRole
}

func (r Requirement) IsPublic() bool { return r.access == accessPublic }

// Decision is the result of Authorize. Location is set for OutcomeRedirect only.
type Decision struct {
	Outcome  Outcome
	Location string
}

func render() Decision                 { return Decision{Outcome: OutcomeRender} }
func redirect(location string) Decision { return Decision{Outcome: OutcomeRedirect, Location: location} }

// Authorize gates a view by session state and role:
//  1. while the session is loading, nothing but a loading placeholder is shown;
//  2. anonymous users go to the login view;
//  3. users of another role go to their own home view, never to login;
//  4. everyone else sees the view.
func Authorize(loading bool, current *user.User, req Requirement) Decision {
	if req.IsPublic() {
		return render()
	}
	if loading {
		return Decision{Outcome: OutcomeLoading}
	}
	if current == nil {
		return redirect(user.LoginPath)
	}
	if role, ok := req.Role(); ok && current.Role != role {
		return redirect(current.Role.HomePath())
	}
	return render()
}
