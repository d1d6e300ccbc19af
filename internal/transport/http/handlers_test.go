package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
)

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.doJSON(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", resp.StatusCode, body)
	}
}

func TestSignupAndSignin(t *testing.T) {
	e := newTestEnv(t)

	created := e.signup(t, "Alice Kim", "alice@example.com", "secret1")
	if created.Token == "" || created.ID == 0 {
		t.Fatalf("expected id and token, got %+v", created)
	}

	// Duplicate email conflicts.
	resp, _ := e.doJSON(t, http.MethodPost, "/api/auth/signup", "", SignupRequest{
		Fullname: "Other", Email: "alice@example.com", Password: "secret2",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}

	resp, body := e.doJSON(t, http.MethodPost, "/api/auth/signin", "", SigninRequest{
		Email: "alice@example.com", Password: "secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on signin, got %d: %s", resp.StatusCode, body)
	}
	var signed AuthResponse
	if err := json.Unmarshal(body, &signed); err != nil {
		t.Fatalf("decode signin response: %v", err)
	}
	if signed.ID != created.ID || signed.Token == "" {
		t.Fatalf("unexpected signin response: %+v", signed)
	}

	resp, _ = e.doJSON(t, http.MethodPost, "/api/auth/signin", "", SigninRequest{
		Email: "alice@example.com", Password: "wrong-pass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
}

func TestListUsersRequiresAuth(t *testing.T) {
	e := newTestEnv(t)

	alice := e.signup(t, "Alice Kim", "alice@example.com", "secret1")
	e.signup(t, "Bob Lee", "bob@example.com", "secret1")

	resp, _ := e.doJSON(t, http.MethodGet, "/api/users", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, body := e.doJSON(t, http.MethodGet, "/api/users", alice.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var users []UserResponse
	if err := json.Unmarshal(body, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestCreateSessionReusesActiveRoom(t *testing.T) {
	e := newTestEnv(t)

	alice := e.signup(t, "Alice Kim", "alice@example.com", "secret1")
	bob := e.signup(t, "Bob Lee", "bob@example.com", "secret1")

	resp, body := e.doJSON(t, http.MethodPost, "/api/chat/session", alice.Token, CreateSessionRequest{TargetUserID: bob.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var first SessionResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(first.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %+v", first.Participants)
	}

	// The reverse direction lands in the same room.
	resp, body = e.doJSON(t, http.MethodPost, "/api/chat/session", bob.Token, CreateSessionRequest{TargetUserID: alice.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var second SessionResponse
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if second.RoomID != first.RoomID {
		t.Fatalf("expected room %d reused, got %d", first.RoomID, second.RoomID)
	}

	resp, _ = e.doJSON(t, http.MethodPost, "/api/chat/session", alice.Token, CreateSessionRequest{TargetUserID: 9999})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d", resp.StatusCode)
	}
}

func TestRoomHistoryRequiresMembership(t *testing.T) {
	e := newTestEnv(t)

	alice := e.signup(t, "Alice Kim", "alice@example.com", "secret1")
	bob := e.signup(t, "Bob Lee", "bob@example.com", "secret1")
	carol := e.signup(t, "Carol Wu", "carol@example.com", "secret1")

	resp, body := e.doJSON(t, http.MethodPost, "/api/chat/session", alice.Token, CreateSessionRequest{TargetUserID: bob.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d: %s", resp.StatusCode, body)
	}
	var session SessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	path := "/api/chat/" + strconv.FormatInt(session.RoomID, 10) + "/messages"

	resp, _ = e.doJSON(t, http.MethodGet, path, carol.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-participant, got %d", resp.StatusCode)
	}

	resp, body = e.doJSON(t, http.MethodGet, path, alice.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for participant, got %d: %s", resp.StatusCode, body)
	}
	var messages []MessageResponse
	if err := json.Unmarshal(body, &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %d", len(messages))
	}
}
