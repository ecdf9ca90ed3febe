package playbooksdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"playbook/internal/config"
	"playbook/internal/db"
	"playbook/internal/engine"
	"playbook/internal/migrate"
	"playbook/internal/server"
)

func newTestAPI(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{Engine: engine.New(conn, config.Default()), BasePath: "/v2"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.ActorID = "sdk-test"
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()

	p, err := c.CreatePlay(ctx, Play{
		Title:      "Cloud Landing Zone",
		Offering:   "Cloud",
		Sector:     "Public Sector",
		StageScope: []string{"Discovery", "Pilot"},
	})
	if err != nil {
		t.Fatalf("create play: %v", err)
	}
	if len(p.Stages) != 2 || p.Stages[0].Key != "Discovery" || p.Stages[1].Key != "Pilot" {
		t.Fatalf("unexpected resolved stages %+v", p.Stages)
	}

	matches, err := c.MatchPlays(ctx, MatchQuery{Offering: []string{"cloud"}})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 1 || matches[0].Score != 100 {
		t.Fatalf("unexpected matches %+v", matches)
	}

	o, err := c.CreateOpportunity(ctx, Opportunity{AccountName: "City Council"}, p.ID)
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	if len(o.OpportunityPlays) != 1 || len(o.OpportunityPlays[0].StageInstances) != 2 {
		t.Fatalf("unexpected attachment %+v", o.OpportunityPlays)
	}

	status := "completed"
	si, err := c.UpdateStage(ctx, o.ID, p.ID, "Pilot", StageUpdate{Status: &status, RiskFlags: []string{"budget"}})
	if err != nil {
		t.Fatalf("update stage: %v", err)
	}
	if si.Status != "completed" || si.Version != 2 || len(si.RiskFlags) != 1 {
		t.Fatalf("unexpected stage instance %+v", si)
	}

	stale := int64(1)
	_, err = c.UpdateStage(ctx, o.ID, p.ID, "Pilot", StageUpdate{Status: &status, ExpectedVersion: &stale})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code != "conflict" {
		t.Fatalf("expected conflict, got %v", err)
	}

	_, err = c.GetPlay(ctx, 9999)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
