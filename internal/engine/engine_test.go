package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"approline/internal/config"
	"approline/internal/db"
	"approline/internal/domain"
	"approline/internal/engine"
	"approline/internal/migrate"
	"approline/internal/repo"
	"approline/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("uc-ppp")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func submit(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, err := env.Engine.SubmitProject(env.Ctx, engine.SubmitOptions{
		Title:     "Port Sec de Kasumbalesa",
		Authority: "OGEFREM",
		Location:  "Haut-Katanga",
		CapexUSD:  120_000_000,
		Submitter: domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return p
}

func TestSubmitStartsAtFirstStage(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	if p.Stage != workflow.First().ID {
		t.Fatalf("stage = %s, want %s", p.Stage, workflow.First().ID)
	}
	if len(p.History) != 0 {
		t.Fatalf("new project has history: %d", len(p.History))
	}
	// ministry resolved from the authority directory
	if p.SupervisingMinistry != "Ministère des Transports" {
		t.Fatalf("ministry = %q", p.SupervisingMinistry)
	}
	got, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != p.Stage || got.Sector != "Transport" {
		t.Fatalf("reload mismatch: %+v", got)
	}
}

func TestDecisionPersistsStageAndHistory(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	id := domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"}

	got, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "Dossier complet", id)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Stage != domain.StageUCConformity {
		t.Fatalf("stage = %s", got.Stage)
	}
	reloaded, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.History) != 1 {
		t.Fatalf("history len = %d", len(reloaded.History))
	}
	d := reloaded.History[0]
	if d.Action != domain.ActionFavorable || d.ActorName != "OGEFREM" || d.NewStage != domain.StageUCConformity {
		t.Fatalf("bad log entry: %+v", d)
	}
	if workflow.Replay(reloaded.History) != reloaded.Stage {
		t.Fatalf("replay mismatch: %s vs %s", workflow.Replay(reloaded.History), reloaded.Stage)
	}
}

func TestDecisionRefusedForWrongRole(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)

	_, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "ok", domain.Identity{Role: domain.RoleDGCMP, Name: "DGCMP"})
	var denied *workflow.UnauthorizedError
	if !errors.As(err, &denied) {
		t.Fatalf("want UnauthorizedError, got %v", err)
	}
	reloaded, _ := env.Engine.GetProject(env.Ctx, p.ID)
	if reloaded.Stage != workflow.First().ID || len(reloaded.History) != 0 {
		t.Fatalf("refused decision must not persist: %+v", reloaded)
	}
}

func TestDecisionRefusedWithoutComment(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)

	_, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "   ", domain.Identity{Role: domain.RoleAdmin, Name: "admin"})
	var missing *workflow.MissingJustificationError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingJustificationError, got %v", err)
	}
}

func TestStaleDecisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}

	// Advance through the engine, then replay the same decision against
	// the repo guard with the stale prior state.
	advanced, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "ok", admin)
	if err != nil {
		t.Fatal(err)
	}
	stale, err := workflow.RecordDecision(p, domain.ActionFavorable, "double", admin, env.Engine.Now())
	if err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.SaveDecisionTx(env.Ctx, tx, stale, p.Stage, len(p.History))
	if !errors.Is(err, repo.ErrStageConflict) {
		t.Fatalf("want ErrStageConflict, got %v", err)
	}
	_ = advanced
}

func TestFullWalkToActive(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}

	var err error
	current := p
	for i := 0; i < workflow.Len(); i++ {
		current, err = env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "validé", admin)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if current.Stage != domain.StageActive {
		t.Fatalf("stage = %s, want %s", current.Stage, domain.StageActive)
	}
	if current.Progress != 100 {
		t.Fatalf("progress = %d", current.Progress)
	}
	reloaded, _ := env.Engine.GetProject(env.Ctx, p.ID)
	if len(reloaded.History) != workflow.Len() {
		t.Fatalf("history len = %d", len(reloaded.History))
	}
}

func TestForceStageRecoversTerminal(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}

	if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionRejected, "Non conforme", admin); err != nil {
		t.Fatal(err)
	}
	// nobody decides on a rejected dossier, including the admin
	if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "retry", admin); err == nil {
		t.Fatal("decision on terminal stage must fail")
	}
	got, err := env.Engine.ForceStage(env.Ctx, p.ID, domain.StageFeasibility, "reprise après recours", admin)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	if got.Stage != domain.StageFeasibility {
		t.Fatalf("stage = %s", got.Stage)
	}
	// gated role may now decide again
	if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "études ok", domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"}); err != nil {
		t.Fatalf("decide after force: %v", err)
	}
}

func TestForceStageRequiresPrivilegedRole(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	_, err := env.Engine.ForceStage(env.Ctx, p.ID, domain.StageFeasibility, "non", domain.Identity{Role: domain.RoleDGCMP, Name: "dgcmp"})
	if err == nil {
		t.Fatal("expected refusal")
	}
}

func TestPendingForGatedRole(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}

	// first stage gates the sectoral ministry
	queue, err := env.Engine.PendingFor(env.Ctx, domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"})
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 || queue[0].ID != p.ID {
		t.Fatalf("sectoral queue = %+v", queue)
	}
	queue, err = env.Engine.PendingFor(env.Ctx, domain.Identity{Role: domain.RoleDGCMP, Name: "dgcmp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 0 {
		t.Fatalf("dgcmp queue = %+v", queue)
	}
	// after advancing, the queue moves to the coordinator
	if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "ok", admin); err != nil {
		t.Fatal(err)
	}
	queue, err = env.Engine.PendingFor(env.Ctx, domain.Identity{Role: domain.RoleCoordinator, Name: "coord"})
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 {
		t.Fatalf("coordinator queue = %+v", queue)
	}
}

func TestListProjectsByPhase(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}

	got, err := env.Engine.ListProjects(env.Ctx, engine.ListFilters{Phase: domain.PhaseIdentification})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("identification list = %+v", got)
	}
	// walk into phase 2
	for i := 0; i < 4; i++ {
		if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "ok", admin); err != nil {
			t.Fatal(err)
		}
	}
	got, err = env.Engine.ListProjects(env.Ctx, engine.ListFilters{Phase: domain.PhaseIdentification})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("identification list after advance = %+v", got)
	}
	got, err = env.Engine.ListProjects(env.Ctx, engine.ListFilters{Phase: domain.PhaseStudies})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("studies list = %+v", got)
	}
	if _, err := env.Engine.ListProjects(env.Ctx, engine.ListFilters{Phase: "inconnue"}); err == nil {
		t.Fatal("unknown phase must error")
	}
}

func TestAttachDocument(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	id := domain.Identity{Role: domain.RoleSectoralMinistry, Name: "OGEFREM"}

	d, err := env.Engine.AttachDocument(env.Ctx, p.ID, "etude-faisabilite.pdf", "feasibility", "", id)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != d.ID {
		t.Fatalf("docs = %+v", docs)
	}
	if _, err := env.Engine.AttachDocument(env.Ctx, "missing", "x.pdf", "misc", "", id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestEventsAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	p := submit(t, env)
	admin := domain.Identity{Role: domain.RoleAdmin, Name: "admin"}
	if _, err := env.Engine.RecordDecision(env.Ctx, p.ID, domain.ActionFavorable, "ok", admin); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, p.ID, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("events = %+v", evts)
	}
	if evts[0].Type != "decision.recorded" || evts[1].Type != "project.submitted" {
		t.Fatalf("event order: %s, %s", evts[0].Type, evts[1].Type)
	}
}

func TestCreateAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	key, clear, err := env.Engine.CreateAPIKey(env.Ctx, "OGEFREM", domain.RoleSectoralMinistry, "ci")
	if err != nil {
		t.Fatal(err)
	}
	if clear == "" || key.KeyHash == clear {
		t.Fatal("clear key must be returned unhashed")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(clear))
	if err != nil {
		t.Fatal(err)
	}
	if got.ActorName != "OGEFREM" || got.Role != domain.RoleSectoralMinistry {
		t.Fatalf("key = %+v", got)
	}
}
