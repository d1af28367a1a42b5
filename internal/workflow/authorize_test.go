package workflow

import (
	"testing"

	"approline/internal/domain"
)

func projectAt(stage domain.StageID) domain.Project {
	return domain.Project{
		ID:                  "UC-2026-001",
		Title:               "Boucle Ferroviaire de Kinshasa",
		Stage:               stage,
		Authority:           "OGEFREM",
		SupervisingMinistry: "Ministère des Transports",
	}
}

func TestAdminAlwaysAuthorized(t *testing.T) {
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "Séraphin"}
	for _, s := range Stages() {
		ok, rule := Authorize(projectAt(s.ID), admin)
		if !ok || rule != "admin-override" {
			t.Fatalf("stage %s: admin denied (rule=%q)", s.ID, rule)
		}
	}
}

func TestStrictStageGating(t *testing.T) {
	// For every (stage, role) pair where the role is neither the gating
	// role nor admin and no exception applies, authorization is denied.
	roles := []domain.Role{
		domain.RoleCoordinator, domain.RolePlanMinistry, domain.RoleFinanceMinistry,
		domain.RoleBudgetMinistry, domain.RoleSpatialPlanning, domain.RoleSectorRegulator,
		domain.RoleDGCMP, domain.RoleSectoralMinistry, domain.RolePrivatePartner,
	}
	for _, s := range Stages() {
		for _, role := range roles {
			p := projectAt(s.ID)
			id := domain.Identity{Role: role, Name: "Quelqu'un"}
			want := role == s.GatingRole
			// The sectoral ministry only acts for its own entities.
			if role == domain.RoleSectoralMinistry && want {
				want = false
			}
			if got := IsAuthorized(p, id); got != want {
				t.Fatalf("stage %s role %s: IsAuthorized = %v, want %v", s.ID, role, got, want)
			}
		}
	}
}

func TestSectoralMinistryOwnershipMatch(t *testing.T) {
	p := projectAt(domain.StageSubmitted)
	cases := []struct {
		name string
		want bool
	}{
		{"OGEFREM", true},                  // sponsoring authority
		{"Ministère des Transports", true}, // supervising ministry
		{"Ministère de la Santé", false},   // unrelated ministry
	}
	for _, c := range cases {
		id := domain.Identity{Role: domain.RoleSectoralMinistry, Name: c.name}
		if got := IsAuthorized(p, id); got != c.want {
			t.Fatalf("sectoral identity %q: IsAuthorized = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestOwnershipAfterReturn(t *testing.T) {
	p := projectAt(domain.StageUCConformity)
	p.History = []domain.Decision{{
		Action:    domain.ActionWithReservations,
		ActorRole: domain.RoleSectoralMinistry,
		ActorName: "Ministère des Transports",
		Comment:   "Compléter l'étude de préfaisabilité",
		NewStage:  domain.StageUCConformity,
	}}

	owner := domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"}
	ok, rule := Authorize(p, owner)
	if !ok || rule != "ownership-after-return" {
		t.Fatalf("owner after return: ok=%v rule=%q", ok, rule)
	}

	stranger := domain.Identity{Role: domain.RoleFinanceMinistry, Name: "Ministère des Finances"}
	if IsAuthorized(p, stranger) {
		t.Fatalf("non-owner must not inherit the return exception")
	}

	// Coordinator acting on its own submissions.
	own := p
	own.Authority = "UC-PPP"
	coord := domain.Identity{Role: domain.RoleCoordinator, Name: "Coordination"}
	if !IsAuthorized(own, coord) {
		t.Fatalf("coordinator denied on its own returned dossier")
	}
}

func TestNoDecisionOnTerminalStates(t *testing.T) {
	for _, stage := range []domain.StageID{domain.StageActive, domain.StageRejected} {
		p := projectAt(stage)
		for _, id := range []domain.Identity{
			{Role: domain.RoleAdmin, Name: "Admin"},
			{Role: domain.RoleCoordinator, Name: "Coordination"},
		} {
			if IsAuthorized(p, id) {
				t.Fatalf("stage %s: %s must be denied", stage, id.Role)
			}
		}
	}
}

func TestAuthorizeIsPure(t *testing.T) {
	p := projectAt(domain.StageDAOProcurement)
	id := domain.Identity{Role: domain.RolePlanMinistry, Name: "Ministère du Plan"}
	first := IsAuthorized(p, id)
	for i := 0; i < 10; i++ {
		if IsAuthorized(p, id) != first {
			t.Fatalf("authorization result changed between identical calls")
		}
	}
}

func TestDenialNamesStageAndRole(t *testing.T) {
	p := projectAt(domain.StageDAOProcurement)
	id := domain.Identity{Role: domain.RoleFinanceMinistry, Name: "Ministère des Finances"}
	err := DenialError(p, id)
	if err.GatingRole != domain.RoleDGCMP {
		t.Fatalf("denial gating role = %s", err.GatingRole)
	}
	if err.StageLabel == "" || err.Stage != domain.StageDAOProcurement {
		t.Fatalf("denial must name the current stage: %+v", err)
	}
}
