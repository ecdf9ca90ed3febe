package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"playbook/internal/config"
	"playbook/internal/db"
	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/migrate"
	"playbook/internal/playmatch"
	"playbook/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
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
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func twoStages() []domain.StageDefinition {
	return []domain.StageDefinition{
		{Key: "Kickoff", Label: "Kickoff", Objective: "Start", Guidance: "Meet", ChecklistItems: []string{"Agenda"}},
		{Key: "Wrapup", Label: "Wrap up", Objective: "Finish", Guidance: "Close", ChecklistItems: []string{"Report", "Invoice"}},
	}
}

func (env testEnv) createPlay(t *testing.T, title string, defs []domain.StageDefinition) domain.Play {
	t.Helper()
	p, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: title, Stages: defs, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create play %s: %v", title, err)
	}
	return p
}

func (env testEnv) createOpp(t *testing.T, playIDs ...int64) domain.Opportunity {
	t.Helper()
	var ids []string
	for _, id := range playIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	o, err := env.Engine.CreateOpportunity(env.Ctx, engine.OpportunityCreateOptions{Offering: "Cloud Migration", PlayIDs: ids, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	return o
}

func strp(s string) *string { return &s }

func TestCreatePlayResolvesScope(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{
		Title:        "Scoped",
		StageScope:   []string{"Closing", "Custom1", "Discovery"},
		Tags:         []string{"Executive", "Brand New", "Executive"},
		Technologies: []string{"AWS"},
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	keys := p.StageKeys()
	want := []string{"Discovery", "Closing", "Custom1"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("stage keys %v, want %v", keys, want)
	}
	if n := len(p.Stages[2].ChecklistItems); n != 1 {
		t.Fatalf("synthesized stage has %d checklist items", n)
	}
	if fmt.Sprint(p.Tags) != "[Executive Brand New]" {
		t.Fatalf("tags %v", p.Tags)
	}
	dict, err := env.Engine.Dictionary(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, tag := range dict.Tags {
		found = found || tag == "Brand New"
	}
	if !found {
		t.Fatalf("new tag not created in dictionary: %v", dict.Tags)
	}
}

func TestCreatePlayValidation(t *testing.T) {
	env := newTestEnv(t)
	var verr engine.ValidationError
	if _, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "  "}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	dup := []domain.StageDefinition{{Key: "A"}, {Key: "A"}}
	if _, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Dup", Stages: dup}); !errors.As(err, &verr) {
		t.Fatalf("expected duplicate stage rejection, got %v", err)
	}
	env.createPlay(t, "Taken", nil)
	if _, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Taken"}); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestExplicitStagesRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Explicit", twoStages())
	got, err := env.Engine.GetPlay(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprintf("%+v", got.Stages) != fmt.Sprintf("%+v", twoStages()) {
		t.Fatalf("stages changed: %+v", got.Stages)
	}
}

func TestAttachMaterializesStageInstances(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Two stages", twoStages())
	o := env.createOpp(t, p.ID, p.ID)
	if o.Name != "New Opportunity - Cloud Migration" || o.AccountName != "New Account" || o.Status != "active" || o.Health != "green" {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if len(o.OpportunityPlays) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(o.OpportunityPlays))
	}
	op := o.OpportunityPlays[0]
	if !op.IsActive || op.IsPrimary || op.PlayID != p.ID {
		t.Fatalf("unexpected attachment: %+v", op)
	}
	if len(op.StageInstances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(op.StageInstances))
	}
	for i, si := range op.StageInstances {
		if si.Status != domain.StageNotStarted || len(si.ChecklistItemStatuses) != 0 || si.PlayStageKey != twoStages()[i].Key {
			t.Fatalf("instance %d: %+v", i, si)
		}
	}
}

func TestCreateOpportunityAbortsOnMissingPlay(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Real", twoStages())
	_, err := env.Engine.CreateOpportunity(env.Ctx, engine.OpportunityCreateOptions{PlayIDs: []string{fmt.Sprint(p.ID), "999"}})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var verr engine.ValidationError
	_, err = env.Engine.CreateOpportunity(env.Ctx, engine.OpportunityCreateOptions{PlayIDs: []string{"abc"}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	opps, err := env.Engine.ListOpportunities(env.Ctx, repo.OpportunityFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 0 {
		t.Fatalf("failed creation left %d opportunities", len(opps))
	}
	if _, err := env.Engine.CreateOpportunity(env.Ctx, engine.OpportunityCreateOptions{Status: "won"}); !errors.As(err, &verr) {
		t.Fatalf("expected status validation, got %v", err)
	}
}

func TestAdditiveAttach(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createPlay(t, "First", twoStages())
	p2 := env.createPlay(t, "Second", twoStages()[:1])
	o := env.createOpp(t, p1.ID)
	firstInstance := o.OpportunityPlays[0].StageInstances[0].ID

	ids := []string{fmt.Sprint(p1.ID)}
	o, err := env.Engine.UpdateOpportunity(env.Ctx, o.ID, engine.OpportunityUpdateOptions{PlayIDs: &ids})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.OpportunityPlays) != 1 || o.OpportunityPlays[0].StageInstances[0].ID != firstInstance {
		t.Fatalf("re-attaching an attached play must be a no-op: %+v", o.OpportunityPlays)
	}

	ids = []string{"999", "not-a-number", fmt.Sprint(p2.ID), fmt.Sprint(p2.ID)}
	o, err = env.Engine.UpdateOpportunity(env.Ctx, o.ID, engine.OpportunityUpdateOptions{PlayIDs: &ids, Name: strp("Renamed")})
	if err != nil {
		t.Fatalf("unknown ids must be skipped: %v", err)
	}
	if o.Name != "Renamed" {
		t.Fatalf("name not updated: %s", o.Name)
	}
	if len(o.OpportunityPlays) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(o.OpportunityPlays))
	}
	if o.OpportunityPlays[1].PlayID != p2.ID || len(o.OpportunityPlays[1].StageInstances) != 1 {
		t.Fatalf("second attachment wrong: %+v", o.OpportunityPlays[1])
	}

	empty := []string{}
	o, err = env.Engine.UpdateOpportunity(env.Ctx, o.ID, engine.OpportunityUpdateOptions{PlayIDs: &empty})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.OpportunityPlays) != 2 {
		t.Fatalf("additive attach must never remove, got %d", len(o.OpportunityPlays))
	}
}

func TestStageChecklistMergeAndCustomReplace(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Checklist", twoStages())
	o := env.createOpp(t, p.ID)

	_, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{
		ChecklistItemStatuses: map[string]string{"Agenda": "done"},
		CustomChecklistItems:  []map[string]any{{"label": "one"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	si, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{
		Status:                strp(domain.StageInProgress),
		ChecklistItemStatuses: map[string]string{"Extra": "todo"},
		CustomChecklistItems:  []map[string]any{{"label": "two", "owner": "sam"}},
		RiskFlags:             []string{"budget", "budget", "timeline"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if si.ChecklistItemStatuses["Agenda"] != "done" || si.ChecklistItemStatuses["Extra"] != "todo" {
		t.Fatalf("checklist not merged: %v", si.ChecklistItemStatuses)
	}
	if len(si.CustomChecklistItems) != 1 || si.CustomChecklistItems[0]["label"] != "two" || si.CustomChecklistItems[0]["owner"] != "sam" {
		t.Fatalf("custom items not replaced: %v", si.CustomChecklistItems)
	}
	if si.Status != domain.StageInProgress || si.Version != 3 {
		t.Fatalf("status %s version %d", si.Status, si.Version)
	}
	if fmt.Sprint(si.RiskFlags) != "[budget timeline]" {
		t.Fatalf("risk flags %v", si.RiskFlags)
	}

	si, err = env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{SummaryNote: strp("on track")})
	if err != nil {
		t.Fatal(err)
	}
	if si.ChecklistItemStatuses["Agenda"] != "done" || len(si.CustomChecklistItems) != 1 || si.SummaryNote == nil {
		t.Fatalf("absent fields must be untouched: %+v", si)
	}
}

func TestStageUpdateErrors(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Errors", twoStages())
	other := env.createPlay(t, "Unattached", twoStages())
	o := env.createOpp(t, p.ID)

	var verr engine.ValidationError
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{Status: strp("done")}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{TargetDate: strp("next week")}); !errors.As(err, &verr) {
		t.Fatalf("expected date validation error, got %v", err)
	}
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Missing", engine.StagePatch{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for stage key, got %v", err)
	}
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, other.ID, "Kickoff", engine.StagePatch{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unattached play, got %v", err)
	}

	v1 := int64(1)
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{ExpectedVersion: &v1, TargetDate: strp("2024-02-01")}); err != nil {
		t.Fatalf("first versioned update: %v", err)
	}
	if _, err := env.Engine.UpdateStageInstance(env.Ctx, o.ID, p.ID, "Kickoff", engine.StagePatch{ExpectedVersion: &v1}); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestPlayEditDoesNotPropagate(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Evolving", StageScope: []string{"Discovery", "Qualification"}})
	if err != nil {
		t.Fatal(err)
	}
	o := env.createOpp(t, p.ID)

	p, err = env.Engine.UpdatePlay(env.Ctx, p.ID, engine.PlayUpdateOptions{Title: "Evolving", StageScope: []string{"Delivery"}})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(p.StageKeys()) != "[Delivery]" {
		t.Fatalf("full update must re-resolve stages: %v", p.StageKeys())
	}
	o, err = env.Engine.GetOpportunity(env.Ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := o.OpportunityPlays[0].StageInstances
	if len(got) != 2 || got[0].PlayStageKey != "Discovery" || got[1].PlayStageKey != "Qualification" {
		t.Fatalf("existing instances changed: %+v", got)
	}
	fresh := env.createOpp(t, p.ID)
	if n := len(fresh.OpportunityPlays[0].StageInstances); n != 1 {
		t.Fatalf("new attachment should follow current stages, got %d", n)
	}
}

func TestPatchPlayScopeDrift(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Drift", StageScope: []string{"Discovery"}})
	if err != nil {
		t.Fatal(err)
	}
	scope := []string{"Discovery", "Closing"}
	p, err = env.Engine.PatchPlay(env.Ctx, p.ID, engine.PlayPatch{StageScope: &scope, Summary: strp("s")})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(p.StageKeys()) != "[Discovery]" || len(p.StageScope) != 2 || p.Summary != "s" {
		t.Fatalf("patch without stages must keep stored stages: %+v", p)
	}

	cfg := config.Default()
	cfg.Plays.ResyncStagesOnScopeChange = true
	resync := newTestEnvWithConfig(t, cfg)
	q, err := resync.Engine.CreatePlay(resync.Ctx, engine.PlayCreateOptions{Title: "Resync", StageScope: []string{"Discovery"}})
	if err != nil {
		t.Fatal(err)
	}
	q, err = resync.Engine.PatchPlay(resync.Ctx, q.ID, engine.PlayPatch{StageScope: &scope})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(q.StageKeys()) != "[Discovery Closing]" {
		t.Fatalf("resync enabled: %v", q.StageKeys())
	}
}

func TestPrimaryPlaySelectionAndDetach(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createPlay(t, "One", twoStages())
	p2 := env.createPlay(t, "Two", twoStages())
	o := env.createOpp(t, p1.ID, p2.ID)
	if o.PrimaryPlayID != nil {
		t.Fatalf("primary must not be set automatically")
	}
	yes := true
	if _, err := env.Engine.SetOpportunityPlay(env.Ctx, o.ID, p1.ID, engine.OpportunityPlayPatch{IsPrimary: &yes}); err != nil {
		t.Fatal(err)
	}
	op, err := env.Engine.SetOpportunityPlay(env.Ctx, o.ID, p2.ID, engine.OpportunityPlayPatch{IsPrimary: &yes, AliasName: strp("Main")})
	if err != nil {
		t.Fatal(err)
	}
	if !op.IsPrimary || op.AliasName != "Main" {
		t.Fatalf("attachment not updated: %+v", op)
	}
	o, err = env.Engine.GetOpportunity(env.Ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if o.PrimaryPlayID == nil || *o.PrimaryPlayID != p2.ID || o.OpportunityPlays[0].IsPrimary {
		t.Fatalf("primary not moved: %+v", o)
	}

	if err := env.Engine.DetachPlay(env.Ctx, o.ID, p2.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	o, err = env.Engine.GetOpportunity(env.Ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if o.PrimaryPlayID != nil || len(o.OpportunityPlays) != 1 {
		t.Fatalf("detach must clear primary and remove attachment: %+v", o)
	}
	if err := env.Engine.DetachPlay(env.Ctx, o.ID, p2.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Cascade", twoStages())
	o := env.createOpp(t, p.ID)
	stageID := o.OpportunityPlays[0].StageInstances[0].ID

	if _, err := env.Engine.AddStageNote(env.Ctx, stageID, engine.NoteOptions{Content: "call went well", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeletePlay(env.Ctx, p.ID, "tester"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected conflict deleting attached play, got %v", err)
	}
	if err := env.Engine.DeleteOpportunity(env.Ctx, o.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ListStageNotes(env.Ctx, stageID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stage instance should be gone, got %v", err)
	}
	if err := env.Engine.DeletePlay(env.Ctx, p.ID, "tester"); err != nil {
		t.Fatalf("delete unreferenced play: %v", err)
	}
	if _, err := env.Engine.GetPlay(env.Ctx, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStageNotes(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlay(t, "Notes", twoStages())
	o := env.createOpp(t, p.ID)
	stageID := o.OpportunityPlays[0].StageInstances[1].ID

	n, err := env.Engine.AddStageNote(env.Ctx, stageID, engine.NoteOptions{Content: "first", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddStageNote(env.Ctx, stageID, engine.NoteOptions{Content: "second", IsPrivate: true}); err != nil {
		t.Fatal(err)
	}
	notes, err := env.Engine.ListStageNotes(env.Ctx, stageID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0].Content != "second" {
		t.Fatalf("expected newest first: %+v", notes)
	}
	updated, err := env.Engine.UpdateStageNote(env.Ctx, n.ID, engine.NotePatch{Content: strp("edited")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "edited" || updated.AuthorID != "tester" {
		t.Fatalf("unexpected note: %+v", updated)
	}
	if err := env.Engine.DeleteStageNote(env.Ctx, n.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteStageNote(env.Ctx, n.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.AddStageNote(env.Ctx, "missing", engine.NoteOptions{Content: "x"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDictionary(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.AddDictionaryOption(env.Ctx, "offerings", "Cloud Migration", "tester"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected conflict for seeded value, got %v", err)
	}
	var verr engine.ValidationError
	if err := env.Engine.AddDictionaryOption(env.Ctx, "planets", "Mars", "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.Engine.AddDictionaryOption(env.Ctx, "geos", "LATAM", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RenameDictionaryOption(env.Ctx, "geos", "LATAM", "EMEA", "tester"); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected rename conflict, got %v", err)
	}
	if err := env.Engine.RenameDictionaryOption(env.Ctx, "geos", "LATAM", "South America", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteDictionaryOption(env.Ctx, "geos", "LATAM", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.Engine.MapOfferingTechnology(env.Ctx, "Cloud Migration", "AWS", "add", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.MapOfferingTechnology(env.Ctx, "Cloud Migration", "Nope", "add", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	dict, err := env.Engine.Dictionary(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(dict.OfferingToTechnologies["Cloud Migration"]) != "[AWS]" {
		t.Fatalf("mapping missing: %v", dict.OfferingToTechnologies)
	}
	if dict.Geos[len(dict.Geos)-1] != "South America" || dict.TechnologyCategories["AWS"] != "Cloud" {
		t.Fatalf("unexpected dictionary: %+v", dict)
	}
	if err := env.Engine.MapOfferingTechnology(env.Ctx, "Cloud Migration", "AWS", "remove", "tester"); err != nil {
		t.Fatal(err)
	}
}

func TestMatchAndSearchPlays(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Cloud Landing Zone", Offering: "Cloud, Security", Sector: "Retail"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreatePlay(env.Ctx, engine.PlayCreateOptions{Title: "Data Mesh", Offering: "Data & AI"}); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.MatchPlays(env.Ctx, playmatch.Query{Offering: []string{"cloud"}, Sector: "X-SECTOR"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Score != 100 || res[0].Play.Title != "Cloud Landing Zone" {
		t.Fatalf("unexpected match: %+v", res)
	}
	all, err := env.Engine.MatchPlays(env.Ctx, playmatch.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered match should return every play, got %d", len(all))
	}
	found, err := env.Engine.SearchPlays(env.Ctx, "mesh")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Title != "Data Mesh" {
		t.Fatalf("unexpected search: %+v", found)
	}
}
