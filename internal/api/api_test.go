package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/olehk/movebot/internal/engine"
	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/notify"
	"github.com/olehk/movebot/internal/store"
	"github.com/olehk/movebot/internal/store/sqlite"
)

const testJWTSecret = "test-secret"

// stubNotifier reports full delivery without sending anything.
type stubNotifier struct{}

func (stubNotifier) Notify(_ context.Context, recipients []int64, _ []string, _ string, _ int64, _ notify.Kind) notify.Delivery {
	return notify.Delivery{Succeeded: len(recipients), Attempted: len(recipients)}
}

func setupTestServer(t *testing.T) (*httptest.Server, string, store.Store) {
	t.Helper()
	st := sqlite.NewTestStore(t)
	eng := engine.New(st, stubNotifier{})
	server := httptest.NewServer(NewRouter(st, eng, testJWTSecret))
	t.Cleanup(server.Close)

	// Create admin operator.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if _, err := st.CreateOperator(ctx, "admin", string(hash), model.OperatorRoleAdmin); err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	return server, login(t, server, "admin", "password"), st
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func do(t *testing.T, method, url, token string, body any, wantStatus int) *http.Response {
	t.Helper()

	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d", method, url, wantStatus, resp.StatusCode)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/moves")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMoveAPIFlow(t *testing.T) {
	server, token, _ := setupTestServer(t)

	// Directory setup.
	city := decode[model.City](t, do(t, "POST", server.URL+"/api/cities", token,
		map[string]string{"name": "Kyiv"}, http.StatusCreated))
	from := decode[model.Point](t, do(t, "POST", server.URL+"/api/points", token,
		map[string]any{"city_id": city.ID, "name": "Central"}, http.StatusCreated))
	to := decode[model.Point](t, do(t, "POST", server.URL+"/api/points", token,
		map[string]any{"city_id": city.ID, "name": "North"}, http.StatusCreated))

	// Bind one user per endpoint.
	do(t, "PUT", server.URL+"/api/users/100/point", token,
		map[string]any{"point_id": from.ID}, http.StatusNoContent).Body.Close()
	do(t, "PUT", server.URL+"/api/users/200/point", token,
		map[string]any{"point_id": to.ID}, http.StatusNoContent).Body.Close()

	// Create, route, annotate, attach, send.
	m := decode[model.Move](t, do(t, "POST", server.URL+"/api/moves", token, nil, http.StatusCreated))
	if m.Status != model.StatusDraft {
		t.Fatalf("expected draft, got %q", m.Status)
	}
	moveURL := server.URL + "/api/moves/" + itoa(m.ID)

	do(t, "PUT", moveURL+"/route", token,
		map[string]any{"from_point_id": from.ID, "to_point_id": to.ID}, http.StatusOK).Body.Close()
	do(t, "PUT", moveURL+"/note", token,
		map[string]string{"note": "fragile"}, http.StatusOK).Body.Close()
	do(t, "PUT", moveURL+"/photos", token,
		map[string]any{"refs": []string{"inv-1", "inv-2"}}, http.StatusOK).Body.Close()

	sent := decode[engine.SendResult](t, do(t, "POST", moveURL+"/send", token, nil, http.StatusOK))
	if sent.Move.Status != model.StatusSent {
		t.Errorf("expected sent, got %q", sent.Move.Status)
	}
	if sent.Source.Succeeded != 1 || sent.Destination.Succeeded != 1 {
		t.Errorf("unexpected delivery counts: %+v", sent)
	}

	// Photos are listed for the current version.
	photos := decode[map[string]any](t, do(t, "GET", moveURL+"/photos", token, nil, http.StatusOK))
	if refs, _ := photos["refs"].([]any); len(refs) != 2 {
		t.Errorf("expected 2 photo refs, got %v", photos["refs"])
	}

	// The move shows up in the active list.
	moves := decode[[]model.Move](t, do(t, "GET", server.URL+"/api/moves?scope=active", token, nil, http.StatusOK))
	if len(moves) != 1 || moves[0].ID != m.ID {
		t.Errorf("unexpected active moves: %v", moves)
	}
}

func TestReinvoiceAndCloseFlow(t *testing.T) {
	server, token, st := setupTestServer(t)
	ctx := context.Background()

	city, _ := st.AddCity(ctx, "Lviv")
	from, _ := st.AddPoint(ctx, city.ID, "Market")
	to, _ := st.AddPoint(ctx, city.ID, "Depot")
	st.UpsertUser(ctx, 100, "", "", model.RolePoint)
	st.LinkUserToPoint(ctx, 100, from.ID)
	st.UpsertUser(ctx, 200, "", "", model.RolePoint)
	st.LinkUserToPoint(ctx, 200, to.ID)

	m := decode[model.Move](t, do(t, "POST", server.URL+"/api/moves", token, nil, http.StatusCreated))
	moveURL := server.URL + "/api/moves/" + itoa(m.ID)

	do(t, "PUT", moveURL+"/route", token,
		map[string]any{"from_point_id": from.ID, "to_point_id": to.ID}, http.StatusOK).Body.Close()
	do(t, "PUT", moveURL+"/photos", token,
		map[string]any{"refs": []string{"inv-1"}}, http.StatusOK).Body.Close()
	do(t, "POST", moveURL+"/send", token, nil, http.StatusOK).Body.Close()

	reinvoiced := decode[engine.SendResult](t, do(t, "POST", moveURL+"/reinvoice", token,
		map[string]any{"refs": []string{"inv-2"}}, http.StatusOK))
	if reinvoiced.Move.InvoiceVersion != 2 {
		t.Errorf("expected version 2, got %d", reinvoiced.Move.InvoiceVersion)
	}

	closed := decode[model.Move](t, do(t, "POST", moveURL+"/close", token, nil, http.StatusOK))
	if closed.Status != model.StatusDone {
		t.Errorf("expected done, got %q", closed.Status)
	}
}

func TestSendErrorMapping(t *testing.T) {
	server, token, st := setupTestServer(t)
	ctx := context.Background()

	// Unknown move.
	do(t, "POST", server.URL+"/api/moves/9999/send", token, nil, http.StatusNotFound).Body.Close()

	// Unrouted move.
	m := decode[model.Move](t, do(t, "POST", server.URL+"/api/moves", token, nil, http.StatusCreated))
	moveURL := server.URL + "/api/moves/" + itoa(m.ID)
	do(t, "POST", moveURL+"/send", token, nil, http.StatusBadRequest).Body.Close()

	// Routed, with photos, but nobody bound at either endpoint.
	city, _ := st.AddCity(ctx, "Odesa")
	from, _ := st.AddPoint(ctx, city.ID, "Port")
	to, _ := st.AddPoint(ctx, city.ID, "Plaza")
	do(t, "PUT", moveURL+"/route", token,
		map[string]any{"from_point_id": from.ID, "to_point_id": to.ID}, http.StatusOK).Body.Close()
	do(t, "PUT", moveURL+"/photos", token,
		map[string]any{"refs": []string{"inv-1"}}, http.StatusOK).Body.Close()
	do(t, "POST", moveURL+"/send", token, nil, http.StatusConflict).Body.Close()

	// Empty photo set.
	do(t, "PUT", moveURL+"/photos", token,
		map[string]any{"refs": []string{}}, http.StatusBadRequest).Body.Close()
}

func TestDirectoryWriteRequiresAdmin(t *testing.T) {
	server, adminToken, _ := setupTestServer(t)

	// Create a plain operator and log in as them.
	do(t, "POST", server.URL+"/api/operators", adminToken,
		map[string]string{"username": "op", "password": "secret", "role": model.OperatorRoleOperator},
		http.StatusCreated).Body.Close()
	opToken := login(t, server, "op", "secret")

	req, _ := authRequest("POST", server.URL+"/api/cities", opToken, map[string]string{"name": "Dnipro"})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Reads are allowed.
	do(t, "GET", server.URL+"/api/cities", opToken, nil, http.StatusOK).Body.Close()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
