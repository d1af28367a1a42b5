package workflow

import (
	"fmt"

	"approline/internal/domain"
)

// MissingJustificationError indicates a decision submitted without a
// motivating comment. Nothing is mutated.
type MissingJustificationError struct {
	ProjectID string
}

func (e *MissingJustificationError) Error() string {
	return fmt.Sprintf("project %s: a justification comment is required to record a decision", e.ProjectID)
}

// UnauthorizedError indicates the acting identity may not decide on the
// project in its current stage. It names the stage and its gating role
// so the caller can route the dossier to the right actor.
type UnauthorizedError struct {
	ProjectID  string
	Stage      domain.StageID
	StageLabel string
	GatingRole domain.Role
	Identity   domain.Identity
}

func (e *UnauthorizedError) Error() string {
	if e.GatingRole == "" {
		return fmt.Sprintf("project %s: %s (%s) may not act on terminal state %q",
			e.ProjectID, e.Identity.Name, e.Identity.Role, e.StageLabel)
	}
	return fmt.Sprintf("project %s: stage %q is reserved for role %q; %s holds role %q",
		e.ProjectID, e.StageLabel, e.GatingRole, e.Identity.Name, e.Identity.Role)
}

// OutOfRangeError is a catalog lookup with an invalid index. This is a
// programming or configuration defect, not a user-facing condition.
type OutOfRangeError struct {
	Index int
	Len   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("stage index %d out of range [0,%d)", e.Index, e.Len)
}
