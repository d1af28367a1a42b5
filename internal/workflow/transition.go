package workflow

import (
	"fmt"
	"strings"
	"time"

	"approline/internal/domain"
)

// NextStage computes the stage a favorable decision moves the project
// to: the catalog entry immediately after the current one, or the
// Active terminal when the current stage is the last.
func NextStage(current domain.StageID) (domain.StageID, error) {
	i := IndexOf(current)
	if i == NotFound {
		return "", &OutOfRangeError{Index: i, Len: Len()}
	}
	if i == Len()-1 {
		return domain.StageActive, nil
	}
	next, err := StageAt(i + 1)
	if err != nil {
		return "", err
	}
	return next.ID, nil
}

// RecordDecision validates and applies one decision to a project. It is
// a pure computation: the input project is not mutated, and persistence
// of the returned copy is the caller's job (atomically, see the repo's
// guarded save). Preconditions are checked in order: justification
// first, then authorization.
func RecordDecision(p domain.Project, action domain.Action, comment string, id domain.Identity, now time.Time) (domain.Project, error) {
	if strings.TrimSpace(comment) == "" {
		return p, &MissingJustificationError{ProjectID: p.ID}
	}
	if !IsAuthorized(p, id) {
		return p, DenialError(p, id)
	}

	var next domain.StageID
	switch action {
	case domain.ActionRejected:
		next = domain.StageRejected
	case domain.ActionFavorable, domain.ActionWithReservations:
		var err error
		next, err = NextStage(p.Stage)
		if err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("unknown decision action %q", action)
	}

	updated := p
	updated.History = make([]domain.Decision, len(p.History), len(p.History)+1)
	copy(updated.History, p.History)
	updated.History = append(updated.History, domain.Decision{
		TS:        now.UTC().Format(time.RFC3339),
		Action:    action,
		ActorRole: id.Role,
		ActorName: id.Name,
		Comment:   comment,
		NewStage:  next,
	})
	updated.Stage = next
	updated.UpdatedAt = now.UTC().Format(time.RFC3339)
	return updated, nil
}

// Replay recomputes the stage reached by applying a history from the
// catalog's first stage. It is the reference implementation of the
// ordering invariant: for any consistent project, Replay(History)
// equals its stored Stage.
func Replay(history []domain.Decision) domain.StageID {
	stage := First().ID
	for _, d := range history {
		switch d.Action {
		case domain.ActionRejected:
			stage = domain.StageRejected
		case domain.ActionFavorable, domain.ActionWithReservations:
			next, err := NextStage(stage)
			if err != nil {
				return stage
			}
			stage = next
		}
	}
	return stage
}
