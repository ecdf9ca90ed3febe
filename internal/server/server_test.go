package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"playbook/internal/config"
	"playbook/internal/db"
	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, cfg)
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v2", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, string(data))
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return env.Error.Code
}

func playBody(title string) map[string]any {
	return map[string]any{
		"title":    title,
		"offering": "Cloud Migration",
		"sector":   "Banking",
		"geo":      "EMEA",
		"stages": []map[string]any{
			{"key": "Kickoff", "label": "Kickoff", "checklist_items": []string{"Agenda"}},
			{"key": "Wrapup", "label": "Wrap up", "checklist_items": []string{"Report"}},
		},
	}
}

func TestPlayOpportunityStageFlow(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", playBody("Migration Sprint"), nil)
	expectStatus(t, res, data, http.StatusCreated)
	play := decode[domain.Play](t, data)
	if len(play.Stages) != 2 || play.Stages[0].Key != "Kickoff" {
		t.Fatalf("unexpected stages %+v", play.Stages)
	}
	playID := itoa(play.ID)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/opportunities", map[string]any{
		"account_name": "Acme",
		"offering":     "Cloud Migration",
		"play_ids":     []string{playID},
	}, nil)
	expectStatus(t, res, data, http.StatusCreated)
	opp := decode[domain.Opportunity](t, data)
	if len(opp.OpportunityPlays) != 1 {
		t.Fatalf("expected one attached play, got %d", len(opp.OpportunityPlays))
	}
	instances := opp.OpportunityPlays[0].StageInstances
	if len(instances) != 2 || instances[1].PlayStageKey != "Wrapup" || instances[1].Status != domain.StageNotStarted {
		t.Fatalf("unexpected stage instances %+v", instances)
	}

	stageURL := srv.URL + "/v2/opportunities/" + opp.ID + "/play/" + playID + "/stage/Kickoff"
	res, data = doJSON(t, client, http.MethodPatch, stageURL, map[string]any{
		"status":                  "in_progress",
		"checklist_item_statuses": map[string]string{"Agenda": "done"},
		"expected_version":        1,
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	si := decode[domain.StageInstance](t, data)
	if si.Status != domain.StageInProgress || si.Version != 2 || si.ChecklistItemStatuses["Agenda"] != "done" {
		t.Fatalf("unexpected stage instance %+v", si)
	}

	res, data = doJSON(t, client, http.MethodPatch, stageURL, map[string]any{
		"status":           "completed",
		"expected_version": 1,
	}, nil)
	expectStatus(t, res, data, http.StatusConflict)
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("expected conflict code, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v2/opportunities/"+opp.ID+"/play/"+playID+"/stage/Missing", map[string]any{
		"status": "completed",
	}, nil)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v2/opportunities/"+opp.ID+"/play/abc/stage/Kickoff", map[string]any{
		"status": "completed",
	}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/opportunities/"+opp.ID, nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	got := decode[domain.Opportunity](t, data)
	if got.OpportunityPlays[0].StageInstances[0].Status != domain.StageInProgress {
		t.Fatalf("stage update not persisted: %+v", got.OpportunityPlays[0].StageInstances[0])
	}
}

func TestOpportunityAttachSemantics(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", playBody("First"), nil)
	expectStatus(t, res, data, http.StatusCreated)
	first := decode[domain.Play](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/opportunities", map[string]any{
		"play_ids": []string{itoa(first.ID), "9999"},
	}, nil)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/opportunities", map[string]any{
		"play_ids": []string{"not-a-number"},
	}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/opportunities", map[string]any{
		"offering": "Data",
	}, nil)
	expectStatus(t, res, data, http.StatusCreated)
	opp := decode[domain.Opportunity](t, data)
	if opp.Name != "New Opportunity - Data" || opp.Status != "active" || opp.Health != "green" {
		t.Fatalf("defaults not applied: %+v", opp)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v2/opportunities/"+opp.ID, map[string]any{
		"play_ids": []string{itoa(first.ID), "9999", "junk"},
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	updated := decode[domain.Opportunity](t, data)
	if len(updated.OpportunityPlays) != 1 || updated.OpportunityPlays[0].PlayID != first.ID {
		t.Fatalf("additive attach should keep only the known play: %+v", updated.OpportunityPlays)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v2/opportunities/"+opp.ID+"/plays/"+itoa(first.ID), map[string]any{
		"is_primary": true,
		"alias_name": "Main track",
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	op := decode[domain.OpportunityPlay](t, data)
	if !op.IsPrimary || op.AliasName != "Main track" {
		t.Fatalf("unexpected attachment %+v", op)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/plays/"+itoa(first.ID), nil, nil)
	expectStatus(t, res, data, http.StatusConflict)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/opportunities/"+opp.ID+"/plays/"+itoa(first.ID), nil, nil)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/plays/"+itoa(first.ID), nil, nil)
	expectStatus(t, res, data, http.StatusNoContent)
}

func TestPlayRoutes(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", playBody("Migration Sprint"), nil)
	expectStatus(t, res, data, http.StatusCreated)
	play := decode[domain.Play](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", playBody("Migration Sprint"), nil)
	expectStatus(t, res, data, http.StatusConflict)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/plays/424242", nil, nil)
	expectStatus(t, res, data, http.StatusNotFound)
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/plays/abc", nil, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v2/plays/"+itoa(play.ID), map[string]any{
		"summary": "Two week sprint",
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	patched := decode[domain.Play](t, data)
	if patched.Summary != "Two week sprint" || len(patched.Stages) != 2 {
		t.Fatalf("unexpected patched play %+v", patched)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", map[string]any{
		"title":    "Analytics Kickstart",
		"offering": "Data Platform",
		"sector":   "Retail",
	}, nil)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/plays/match?offering=cloud&sector=banking", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	matches := decode[MatchList](t, data)
	if len(matches.Items) != 1 || matches.Items[0].Play.ID != play.ID || matches.Items[0].Score != 100 {
		t.Fatalf("unexpected matches %+v", matches.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/plays/search?q=analyt", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	found := decode[PlayList](t, data)
	if len(found.Items) != 1 || found.Items[0].Title != "Analytics Kickstart" {
		t.Fatalf("unexpected search result %+v", found.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/plays", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if all := decode[PlayList](t, data); len(all.Items) != 2 {
		t.Fatalf("expected 2 plays, got %d", len(all.Items))
	}
}

func TestStageNotesRoutes(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	ctx := context.Background()

	p, err := srv.Engine.CreatePlay(ctx, engine.PlayCreateOptions{Title: "Notes", StageScope: []string{"Discovery"}})
	if err != nil {
		t.Fatalf("create play: %v", err)
	}
	opp, err := srv.Engine.CreateOpportunity(ctx, engine.OpportunityCreateOptions{PlayIDs: []string{itoa(p.ID)}})
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	stageID := opp.OpportunityPlays[0].StageInstances[0].ID

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v2/stage-instances/"+stageID+"/notes", map[string]any{
		"content": "Met the sponsor",
	}, map[string]string{"X-Actor-Id": "dana"})
	expectStatus(t, res, data, http.StatusCreated)
	note := decode[domain.StageNote](t, data)
	if note.AuthorID != "dana" {
		t.Fatalf("expected author dana, got %q", note.AuthorID)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v2/notes/"+note.ID, map[string]any{
		"is_private": true,
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	if updated := decode[domain.StageNote](t, data); !updated.IsPrivate || updated.Content != "Met the sponsor" {
		t.Fatalf("unexpected note %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/stage-instances/"+stageID+"/notes", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if list := decode[NoteList](t, data); len(list.Items) != 1 {
		t.Fatalf("expected 1 note, got %d", len(list.Items))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/stage-instances/nope/notes", nil, nil)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/notes/"+note.ID, nil, nil)
	expectStatus(t, res, data, http.StatusNoContent)
}

func TestDictionaryRoutes(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v2/admin/dictionary/tags", map[string]any{"value": "strategic"}, nil)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/admin/dictionary/tags", map[string]any{"value": "strategic"}, nil)
	expectStatus(t, res, data, http.StatusConflict)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/admin/dictionary/colors", map[string]any{"value": "red"}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v2/admin/dictionary/tags/strategic", map[string]any{"new_value": "key-account"}, nil)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/dictionary", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	dict := decode[domain.Dictionary](t, data)
	found := false
	for _, tag := range dict.Tags {
		if tag == "strategic" {
			t.Fatalf("old tag still listed")
		}
		if tag == "key-account" {
			found = true
		}
	}
	if !found {
		t.Fatalf("renamed tag missing from %v", dict.Tags)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/admin/dictionary/tags/key-account", nil, nil)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v2/admin/dictionary/tags/key-account", nil, nil)
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestActorResolution(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret, DefaultActor: "fallback"})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v2/health", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", map[string]any{"title": "By Alice"}, map[string]string{"Authorization": "Bearer " + token})
	expectStatus(t, res, data, http.StatusCreated)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", map[string]any{"title": "By Bob"}, map[string]string{"X-Actor-Id": "bob"})
	expectStatus(t, res, data, http.StatusCreated)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v2/plays", map[string]any{"title": "Anonymous"}, nil)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/events?type=play.created", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	page := decode[EventPage](t, data)
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 events, got %d", len(page.Items))
	}
	// Newest first.
	want := []string{"fallback", "bob", "alice"}
	for i, evt := range page.Items {
		if evt.ActorID != want[i] {
			t.Fatalf("event %d actor %q, want %q", i, evt.ActorID, want[i])
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/events?type=play.created&limit=2", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	first := decode[EventPage](t, data)
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected a second page, got %+v", first)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v2/events?type=play.created&limit=2&cursor="+first.NextCursor, nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	second := decode[EventPage](t, data)
	if len(second.Items) != 1 || second.Items[0].ActorID != "alice" {
		t.Fatalf("unexpected second page %+v", second.Items)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v2/openapi.json", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	for _, p := range []string{"/v2/plays", "/v2/plays/match", "/v2/opportunities/{id}/play/{play_id}/stage/{stage_key}"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("openapi missing path %s", p)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if !bytes.Contains(data, []byte("/v2/openapi.json")) {
		t.Fatalf("docs page does not reference the openapi url")
	}
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []webhookEvent
	var headers []http.Header
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"play.*"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := e.CreatePlay(ctx, engine.PlayCreateOptions{Title: "Before start"}); err != nil {
		t.Fatalf("create play: %v", err)
	}
	d := newWebhookDispatcher(e, nil)
	d.dispatchAll(ctx)

	p, err := e.CreatePlay(ctx, engine.PlayCreateOptions{Title: "After start"})
	if err != nil {
		t.Fatalf("create play: %v", err)
	}
	if _, err := e.CreateOpportunity(ctx, engine.OpportunityCreateOptions{}); err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d: %+v", len(received), received)
	}
	if received[0].Type != "play.created" || received[0].EntityID != itoa(p.ID) {
		t.Fatalf("unexpected delivery %+v", received[0])
	}
	if headers[0].Get("X-Playbook-Event") != "play.created" || headers[0].Get("X-Playbook-Secret") != "s3cret" {
		t.Fatalf("unexpected headers %v", headers[0])
	}
}

func TestEventFilter(t *testing.T) {
	cases := []struct {
		events []string
		evt    string
		want   bool
	}{
		{nil, "play.created", true},
		{[]string{"*"}, "stage.updated", true},
		{[]string{"stage.*"}, "stage.note.added", true},
		{[]string{"stage.*"}, "play.created", false},
		{[]string{"play.created"}, "play.created", true},
		{[]string{"play.created"}, "play.updated", false},
	}
	for _, tc := range cases {
		if got := newEventFilter(tc.events).match(tc.evt); got != tc.want {
			t.Errorf("filter %v match %q = %v, want %v", tc.events, tc.evt, got, tc.want)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
