package workflow

import (
	"approline/internal/domain"
)

// coordinatorAuthority is the submitting-authority name under which the
// coordination unit files its own dossiers.
const coordinatorAuthority = "UC-PPP"

// rule is one eligibility predicate. It returns (granted, matched):
// matched=false means the rule does not apply and evaluation continues.
type rule struct {
	Name string
	Eval func(p domain.Project, id domain.Identity) (bool, bool)
}

// rules are evaluated in order, first match wins. The ordering is
// deliberate: several rules overlap and a later, broader grant must not
// mask an earlier, more specific one. New rules are appended, existing
// branches are never edited in place.
//
// The cross-phase blanket grants some historical screens gave the Plan,
// Finance and Budget ministries ("any dossier in my phase") are
// intentionally absent: gating is strictly per stage, so a later-phase
// role cannot act before earlier approvals land.
var rules = []rule{
	{
		Name: "admin-override",
		Eval: func(p domain.Project, id domain.Identity) (bool, bool) {
			if id.Role == domain.RoleAdmin {
				return true, true
			}
			return false, false
		},
	},
	{
		Name: "coordinator-stage",
		Eval: func(p domain.Project, id domain.Identity) (bool, bool) {
			role, ok := GatingRoleOf(p.Stage)
			if ok && role == domain.RoleCoordinator && id.Role == domain.RoleCoordinator {
				return true, true
			}
			return false, false
		},
	},
	{
		Name: "ownership-after-return",
		Eval: func(p domain.Project, id domain.Identity) (bool, bool) {
			if !ReturnedForCorrection(p) {
				return false, false
			}
			if id.Name == p.Authority {
				return true, true
			}
			if id.Role == domain.RoleCoordinator && p.Authority == coordinatorAuthority {
				return true, true
			}
			return false, false
		},
	},
	{
		Name: "stage-gating",
		Eval: func(p domain.Project, id domain.Identity) (bool, bool) {
			role, ok := GatingRoleOf(p.Stage)
			if !ok || id.Role != role {
				return false, false
			}
			// A sectoral ministry acts for every entity under its
			// supervision, not only the literal submitter.
			if role == domain.RoleSectoralMinistry {
				if id.Name == p.Authority || id.Name == p.SupervisingMinistry {
					return true, true
				}
				return false, false
			}
			return true, true
		},
	},
}

// ReturnedForCorrection reports whether the most recent decision sent
// the dossier back with reservations, opening the ownership exception.
func ReturnedForCorrection(p domain.Project) bool {
	if len(p.History) == 0 {
		return false
	}
	return p.History[len(p.History)-1].Action == domain.ActionWithReservations
}

// Authorize evaluates the rule list and returns whether the identity
// may record a decision now, plus the name of the rule that granted it
// (empty on denial) for audit purposes.
func Authorize(p domain.Project, id domain.Identity) (bool, string) {
	// No decision is ever recorded against a terminal state; recovery
	// from Active/Rejected goes through the engine's stage forcing.
	if IsTerminal(p.Stage) {
		return false, ""
	}
	for _, r := range rules {
		if granted, matched := r.Eval(p, id); matched {
			return granted, r.Name
		}
	}
	return false, ""
}

// IsAuthorized is the boolean form of Authorize. It is a pure function
// of its inputs; identical calls return identical results.
func IsAuthorized(p domain.Project, id domain.Identity) bool {
	ok, _ := Authorize(p, id)
	return ok
}

// DenialError builds the typed error explaining why the identity was
// refused, naming the current stage and its gating role.
func DenialError(p domain.Project, id domain.Identity) *UnauthorizedError {
	role, _ := GatingRoleOf(p.Stage)
	return &UnauthorizedError{
		ProjectID:  p.ID,
		Stage:      p.Stage,
		StageLabel: LabelOf(p.Stage),
		GatingRole: role,
		Identity:   id,
	}
}
