// Package guard decides what a protected page renders.
package guard

import (
	"fmt"

	"github.com/example/parcel-express/internal/models"
)

type Decision int

const (
	// Placeholder: the precondition is still resolving; render neither the
	// page nor a denial.
	Placeholder Decision = iota
	Denied
	LoginRequired
	Allow
)

func (d Decision) String() string {
	switch d {
	case Placeholder:
		return "placeholder"
	case Denied:
		return "denied"
	case LoginRequired:
		return "login_required"
	case Allow:
		return "allow"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Admin gates the admin page on the caller's resolved role.
func Admin(loading bool, role models.Role) Decision {
	if loading {
		return Placeholder
	}
	switch role {
	case models.RoleAdmin:
		return Allow
	case models.RoleUser, models.RoleGuest:
		return Denied
	}
	panic(fmt.Sprintf("guard: unhandled role %d", int(role)))
}

// Rider gates the rider page on the presence of an identity.
func Rider(initializing, present bool) Decision {
	switch {
	case initializing:
		return Placeholder
	case !present:
		return LoginRequired
	}
	return Allow
}
