package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inkwell/api/internal/store"
)

func newTestServer(env *testEnv) *httptest.Server {
	httpServer := NewHTTPServer(env.service, "*", zerolog.Nop())
	return httptest.NewServer(httpServer.Handler())
}

func TestHTTPHealth(t *testing.T) {
	env := newTestEnv()
	server := newTestServer(env)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHTTPRequiresBearerForMutations(t *testing.T) {
	env := newTestEnv()
	server := newTestServer(env)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/posts", "application/json", strings.NewReader(`{"title":"t","content":"c"}`))
	if err != nil {
		t.Fatalf("POST /api/posts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHTTPGuestTicketSubmission(t *testing.T) {
	env := newTestEnv()
	server := newTestServer(env)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/tickets", "application/json",
		strings.NewReader(`{"subject":"Locked out","message":"help"}`))
	if err != nil {
		t.Fatalf("POST /api/tickets: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var body struct {
		Ticket store.SupportTicket `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Ticket.SubmitterEmail != "guest" {
		t.Fatalf("submitter = %q", body.Ticket.SubmitterEmail)
	}
}

func TestHTTPPostLifecycleWithBearer(t *testing.T) {
	env := newTestEnv()
	env.seedAccount(store.Account{ID: "acc_user@example.com", Email: "user@example.com", Name: "User"})
	server := newTestServer(env)
	defer server.Close()

	session, err := env.service.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/posts",
		strings.NewReader(`{"title":"Hello","content":"World"}`))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/posts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		Post store.Post `json:"post"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	getResp, err := http.Get(server.URL + "/api/posts/" + created.Post.ID)
	if err != nil {
		t.Fatalf("GET post: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/posts/"+created.Post.ID, nil)
	delReq.Header.Set("Authorization", "Bearer "+session.Token)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("DELETE post: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", delResp.StatusCode)
	}
	if _, ok := env.store.deletedPosts[created.Post.ID]; !ok {
		t.Fatal("default delete should be the soft path")
	}
}

func TestHTTPAdminRoutesForbiddenForRegularUser(t *testing.T) {
	env := newTestEnv()
	env.seedAccount(store.Account{ID: "acc_user@example.com", Email: "user@example.com"})
	server := newTestServer(env)
	defer server.Close()

	session, err := env.service.Login(context.Background(), LoginInput{
		Email:    "user@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/admin/activity-logs", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET activity logs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHTTPPublicListingOmitsOwnerEmail(t *testing.T) {
	env := newTestEnv()
	env.seedAccount(store.Account{ID: "acc_root@example.com", Email: "root@example.com", IsAdmin: true, IsSuperAdmin: true})
	env.seedPost(store.Post{ID: "p1", Title: "T", Content: "C", Author: "Anonymous", IsAnonymous: true, ActualAuthor: "secret@example.com"})
	server := newTestServer(env)
	defer server.Close()

	for _, path := range []string{"/api/posts", "/api/posts/p1"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		if strings.Contains(string(body), "secret@example.com") {
			t.Fatalf("GET %s leaks owner email: %s", path, body)
		}
	}

	session, err := env.service.Login(context.Background(), LoginInput{
		Email:    "root@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/posts/p1", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET post as super admin: %v", err)
	}
	defer resp.Body.Close()
	var got struct {
		Post store.Post `json:"post"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Post.ActualAuthor != "secret@example.com" {
		t.Fatalf("super admin should see owning identity, got %q", got.Post.ActualAuthor)
	}
}
