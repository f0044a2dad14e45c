package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"actionboard/internal/engine"
	"actionboard/internal/registry"
	"actionboard/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewFileStore(t.TempDir(), nil)
	reg := registry.New(st)
	if err := reg.Init(context.Background(), "Carla", []string{"Aline", "Marcos"}); err != nil {
		t.Fatal(err)
	}
	handler, err := New(Config{
		Engine:   engine.New(st, reg, nil),
		Registry: reg,
		Session:  SessionConfig{Secret: "test-secret"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

// doJSON issues a request and decodes the response body into out when
// out is non-nil. It returns the HTTP status code.
func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func selectUser(t *testing.T, client *http.Client, base, user string) {
	t.Helper()
	status := doJSON(t, client, http.MethodPut, base+"/v0/session", map[string]string{"user": user}, nil)
	if status != http.StatusOK {
		t.Fatalf("select %s: status %d", user, status)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var out struct {
		Status string `json:"status"`
	}
	if status := doJSON(t, newClient(t), http.MethodGet, ts.URL+"/v0/health", nil, &out); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out.Status != "ok" {
		t.Fatalf("body = %+v", out)
	}
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	var sess struct {
		User     string `json:"user"`
		Director bool   `json:"director"`
		Selected bool   `json:"selected"`
	}
	if status := doJSON(t, client, http.MethodGet, ts.URL+"/v0/session", nil, &sess); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if sess.Selected {
		t.Fatal("fresh client already has a session")
	}

	if status := doJSON(t, client, http.MethodPut, ts.URL+"/v0/session", map[string]string{"user": "Zoe"}, nil); status != http.StatusNotFound {
		t.Fatalf("unknown user: status = %d", status)
	}

	selectUser(t, client, ts.URL, "Carla")
	if status := doJSON(t, client, http.MethodGet, ts.URL+"/v0/session", nil, &sess); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !sess.Selected || sess.User != "Carla" || !sess.Director {
		t.Fatalf("session = %+v", sess)
	}
}

func TestActivitiesRequireSession(t *testing.T) {
	ts := newTestServer(t)
	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	status := doJSON(t, newClient(t), http.MethodGet, ts.URL+"/v0/activities", nil, &errBody)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	if errBody.Error.Code != "no_session" {
		t.Fatalf("code = %q", errBody.Error.Code)
	}
}

type activityResp struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Overall      string   `json:"overall_status"`
	OverallLabel string   `json:"overall_status_label"`
	Responsible  []string `json:"responsible"`
	ResponsibleStatus map[string]struct {
		Status                string `json:"status"`
		Justification         string `json:"justification"`
		JustificationApproved bool   `json:"justification_approved"`
	} `json:"responsible_status"`
	History []struct {
		Action string `json:"action"`
		User   string `json:"user"`
	} `json:"history"`
}

func createActivity(t *testing.T, client *http.Client, base string, responsible ...string) activityResp {
	t.Helper()
	var act activityResp
	status := doJSON(t, client, http.MethodPost, base+"/v0/activities", map[string]any{
		"title":       "Quarterly audit",
		"description": "Review Q3 numbers",
		"deadline":    "2026-10-15",
		"responsible": responsible,
	}, &act)
	if status != http.StatusCreated {
		t.Fatalf("create: status = %d", status)
	}
	return act
}

func TestJustificationWorkflow(t *testing.T) {
	ts := newTestServer(t)
	director := newClient(t)
	selectUser(t, director, ts.URL, "Carla")
	act := createActivity(t, director, ts.URL, "Aline", "Marcos")

	aline := newClient(t)
	selectUser(t, aline, ts.URL, "Aline")
	var updated activityResp
	status := doJSON(t, aline, http.MethodPut, fmt.Sprintf("%s/v0/activities/%d/status", ts.URL, act.ID), map[string]string{
		"status":        "pending",
		"justification": "travel delay",
	}, &updated)
	if status != http.StatusOK {
		t.Fatalf("set status: %d", status)
	}
	if updated.ResponsibleStatus["Aline"].Justification != "travel delay" {
		t.Fatalf("activity = %+v", updated)
	}

	// Only the director sees the dashboard.
	if status := doJSON(t, aline, http.MethodGet, ts.URL+"/v0/dashboard", nil, nil); status != http.StatusForbidden {
		t.Fatalf("dashboard as manager: %d", status)
	}
	var dash struct {
		Pending []struct {
			ActivityID int    `json:"activity_id"`
			Person     string `json:"person"`
		} `json:"pending_justifications"`
	}
	if status := doJSON(t, director, http.MethodGet, ts.URL+"/v0/dashboard", nil, &dash); status != http.StatusOK {
		t.Fatalf("dashboard: %d", status)
	}
	if len(dash.Pending) != 1 || dash.Pending[0].Person != "Aline" {
		t.Fatalf("dashboard = %+v", dash)
	}

	reviewURL := fmt.Sprintf("%s/v0/activities/%d/justifications/Aline/review", ts.URL, act.ID)
	if status := doJSON(t, director, http.MethodPost, reviewURL, map[string]string{"decision": "approve"}, &updated); status != http.StatusOK {
		t.Fatalf("approve: %d", status)
	}
	if !updated.ResponsibleStatus["Aline"].JustificationApproved {
		t.Fatalf("not approved: %+v", updated)
	}
	if status := doJSON(t, director, http.MethodPost, reviewURL, map[string]string{"decision": "approve"}, nil); status != http.StatusConflict {
		t.Fatalf("double approve: %d", status)
	}
}

func TestStatusAggregationOverAPI(t *testing.T) {
	ts := newTestServer(t)
	director := newClient(t)
	selectUser(t, director, ts.URL, "Carla")
	act := createActivity(t, director, ts.URL, "Aline", "Marcos")

	statusURL := fmt.Sprintf("%s/v0/activities/%d/status", ts.URL, act.ID)
	var updated activityResp
	if st := doJSON(t, director, http.MethodPut, statusURL, map[string]string{"person": "Aline", "status": "completed"}, &updated); st != http.StatusOK {
		t.Fatalf("status = %d", st)
	}
	if updated.Overall != "pending" {
		t.Fatalf("overall = %q, want pending", updated.Overall)
	}
	if st := doJSON(t, director, http.MethodPut, statusURL, map[string]string{"person": "Marcos", "status": "completed"}, &updated); st != http.StatusOK {
		t.Fatalf("status = %d", st)
	}
	if updated.Overall != "completed" || updated.OverallLabel != "Completed" {
		t.Fatalf("overall = %q / %q", updated.Overall, updated.OverallLabel)
	}
}

func TestDeleteForbiddenForManager(t *testing.T) {
	ts := newTestServer(t)
	director := newClient(t)
	selectUser(t, director, ts.URL, "Carla")
	act := createActivity(t, director, ts.URL, "Aline")

	aline := newClient(t)
	selectUser(t, aline, ts.URL, "Aline")
	url := fmt.Sprintf("%s/v0/activities/%d", ts.URL, act.ID)
	if status := doJSON(t, aline, http.MethodDelete, url, nil, nil); status != http.StatusForbidden {
		t.Fatalf("delete as manager: %d", status)
	}
	if status := doJSON(t, director, http.MethodDelete, url, nil, nil); status != http.StatusNoContent {
		t.Fatalf("delete as director: %d", status)
	}
	if status := doJSON(t, director, http.MethodGet, url, nil, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete: %d", status)
	}
}

func TestListVisibility(t *testing.T) {
	ts := newTestServer(t)
	director := newClient(t)
	selectUser(t, director, ts.URL, "Carla")
	createActivity(t, director, ts.URL, "Aline")
	createActivity(t, director, ts.URL, "Marcos")

	var list struct {
		Activities []activityResp `json:"activities"`
	}
	if status := doJSON(t, director, http.MethodGet, ts.URL+"/v0/activities", nil, &list); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if len(list.Activities) != 2 {
		t.Fatalf("director sees %d", len(list.Activities))
	}

	aline := newClient(t)
	selectUser(t, aline, ts.URL, "Aline")
	if status := doJSON(t, aline, http.MethodGet, ts.URL+"/v0/activities", nil, &list); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if len(list.Activities) != 1 || list.Activities[0].Responsible[0] != "Aline" {
		t.Fatalf("Aline sees %+v", list.Activities)
	}
}

func TestResponsiblesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	director := newClient(t)
	selectUser(t, director, ts.URL, "Carla")
	createActivity(t, director, ts.URL, "Aline")

	var list struct {
		Managers []struct {
			Name       string `json:"name"`
			Director   bool   `json:"director"`
			Activities int    `json:"activities"`
		} `json:"managers"`
		Director string `json:"director"`
	}
	if status := doJSON(t, director, http.MethodGet, ts.URL+"/v0/responsibles", nil, &list); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if list.Director != "Carla" || len(list.Managers) != 3 {
		t.Fatalf("list = %+v", list)
	}
	for _, m := range list.Managers {
		if m.Name == "Aline" && m.Activities != 1 {
			t.Fatalf("Aline count = %d", m.Activities)
		}
	}

	if status := doJSON(t, director, http.MethodPost, ts.URL+"/v0/responsibles", map[string]string{"name": "Diego"}, nil); status != http.StatusCreated {
		t.Fatalf("add: %d", status)
	}
	if status := doJSON(t, director, http.MethodPost, ts.URL+"/v0/responsibles", map[string]string{"name": "Diego"}, nil); status != http.StatusBadRequest {
		t.Fatalf("duplicate add: %d", status)
	}
	if status := doJSON(t, director, http.MethodDelete, ts.URL+"/v0/responsibles/Carla", nil, nil); status != http.StatusConflict {
		t.Fatalf("remove director: %d", status)
	}
	if status := doJSON(t, director, http.MethodDelete, ts.URL+"/v0/responsibles/Aline", nil, nil); status != http.StatusConflict {
		t.Fatalf("remove assigned manager: %d", status)
	}
	if status := doJSON(t, director, http.MethodDelete, ts.URL+"/v0/responsibles/Diego", nil, nil); status != http.StatusNoContent {
		t.Fatalf("remove: %d", status)
	}

	aline := newClient(t)
	selectUser(t, aline, ts.URL, "Aline")
	if status := doJSON(t, aline, http.MethodPost, ts.URL+"/v0/responsibles", map[string]string{"name": "Eva"}, nil); status != http.StatusForbidden {
		t.Fatalf("add as manager: %d", status)
	}
}
