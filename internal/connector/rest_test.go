package connector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/transport"
)

type recordedCall struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func channelServer(t *testing.T, status int, reply any) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := recordedCall{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&c.body)
		}
		calls = append(calls, c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if reply != nil {
			_ = json.NewEncoder(w).Encode(reply)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRESTConnectorClient_Routes(t *testing.T) {
	srv, calls := channelServer(t, http.StatusOK, activity.ResourceResponse{ID: "rr-1"})
	c := NewRESTConnectorClient(srv.URL+"/", transport.NewClient(0), auth.StaticTokenProvider{Token: "tok"}, "skill-app")
	ctx := context.Background()
	msg := activity.NewMessage("hi")

	rr, err := c.SendToConversation(ctx, "conv/1", msg)
	if err != nil {
		t.Fatalf("SendToConversation() error: %v", err)
	}
	if rr.ID != "rr-1" {
		t.Errorf("ID = %q, want rr-1", rr.ID)
	}
	if _, err := c.ReplyToActivity(ctx, "conv/1", "a1", msg); err != nil {
		t.Fatalf("ReplyToActivity() error: %v", err)
	}
	if _, err := c.UpdateActivity(ctx, "conv/1", "a1", msg); err != nil {
		t.Fatalf("UpdateActivity() error: %v", err)
	}
	if err := c.DeleteActivity(ctx, "conv/1", "a1"); err != nil {
		t.Fatalf("DeleteActivity() error: %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodPost, "/v3/conversations/conv%2F1/activities"},
		{http.MethodPost, "/v3/conversations/conv%2F1/activities/a1"},
		{http.MethodPut, "/v3/conversations/conv%2F1/activities/a1"},
		{http.MethodDelete, "/v3/conversations/conv%2F1/activities/a1"},
	}
	if len(*calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(*calls), len(want))
	}
	for i, w := range want {
		got := (*calls)[i]
		if got.method != w.method || got.path != w.path {
			t.Errorf("call %d = %s %s, want %s %s", i, got.method, got.path, w.method, w.path)
		}
		if got.auth != "Bearer tok" {
			t.Errorf("call %d Authorization = %q", i, got.auth)
		}
	}
	if (*calls)[0].body["text"] != "hi" {
		t.Errorf("body = %v", (*calls)[0].body)
	}
}

func TestRESTConnectorClient_Members(t *testing.T) {
	srv, _ := channelServer(t, http.StatusOK, []activity.ChannelAccount{{ID: "u1"}, {ID: "u2"}})
	c := NewRESTConnectorClient(srv.URL, transport.NewClient(0), auth.AnonymousTokenProvider{}, "")

	members, err := c.GetConversationMembers(context.Background(), "conv")
	if err != nil {
		t.Fatalf("GetConversationMembers() error: %v", err)
	}
	if len(members) != 2 || members[1].ID != "u2" {
		t.Errorf("members = %+v", members)
	}
}

func TestRESTConnectorClient_HTTPError(t *testing.T) {
	srv, _ := channelServer(t, http.StatusForbidden, map[string]string{"error": "denied"})
	c := NewRESTConnectorClient(srv.URL, transport.NewClient(0), auth.AnonymousTokenProvider{}, "")

	_, err := c.SendToConversation(context.Background(), "conv", activity.NewMessage("x"))
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", httpErr.StatusCode)
	}
}

func TestRESTUserTokenClient_GetUserToken(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv, calls := channelServer(t, http.StatusOK, activity.TokenResponse{Token: "user-token", ConnectionName: "graph"})
		c := NewRESTUserTokenClient(srv.URL, "bot-app", transport.NewClient(0), auth.StaticTokenProvider{Token: "bot"})

		tr, err := c.GetUserToken(context.Background(), "u1", "graph", "msteams", "123456")
		if err != nil {
			t.Fatalf("GetUserToken() error: %v", err)
		}
		if tr == nil || tr.Token != "user-token" {
			t.Fatalf("token = %+v", tr)
		}
		got := (*calls)[0]
		if got.path != "/api/usertoken/GetToken" {
			t.Errorf("path = %q", got.path)
		}
		if got.query != "channelId=msteams&code=123456&connectionName=graph&userId=u1" {
			t.Errorf("query = %q", got.query)
		}
	})

	t.Run("not found", func(t *testing.T) {
		srv, _ := channelServer(t, http.StatusNotFound, nil)
		c := NewRESTUserTokenClient(srv.URL, "bot-app", transport.NewClient(0), auth.StaticTokenProvider{Token: "bot"})

		tr, err := c.GetUserToken(context.Background(), "u1", "graph", "msteams", "")
		if err != nil || tr != nil {
			t.Errorf("GetUserToken() = %+v, %v; want nil, nil", tr, err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv, _ := channelServer(t, http.StatusInternalServerError, nil)
		c := NewRESTUserTokenClient(srv.URL, "bot-app", transport.NewClient(0), auth.StaticTokenProvider{Token: "bot"})

		if _, err := c.GetUserToken(context.Background(), "u1", "graph", "msteams", ""); err == nil {
			t.Error("expected error for 500")
		}
	})
}

func TestRESTUserTokenClient_GetSignInResource(t *testing.T) {
	srv, calls := channelServer(t, http.StatusOK, activity.SignInResource{SignInLink: "https://signin.example/x"})
	c := NewRESTUserTokenClient(srv.URL, "bot-app", transport.NewClient(0), auth.StaticTokenProvider{Token: "bot"})

	a := &activity.Activity{
		ID:           "a1",
		ChannelID:    "msteams",
		Conversation: &activity.ConversationAccount{ID: "conv"},
		From:         &activity.ChannelAccount{ID: "u1"},
	}
	res, err := c.GetSignInResource(context.Background(), "graph", a, "")
	if err != nil {
		t.Fatalf("GetSignInResource() error: %v", err)
	}
	if res.SignInLink != "https://signin.example/x" {
		t.Errorf("SignInLink = %q", res.SignInLink)
	}

	req, _ := http.NewRequest(http.MethodGet, "/?"+(*calls)[0].query, nil)
	raw, err := base64.StdEncoding.DecodeString(req.URL.Query().Get("state"))
	if err != nil {
		t.Fatalf("state not base64: %v", err)
	}
	var state tokenExchangeState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("state not JSON: %v", err)
	}
	if state.ConnectionName != "graph" || state.MsAppID != "bot-app" || state.Conversation.ConversationID() != "conv" {
		t.Errorf("state = %+v", state)
	}
}

func TestRESTClientFactory(t *testing.T) {
	srv, calls := channelServer(t, http.StatusOK, activity.ResourceResponse{ID: "x"})
	f := NewRESTClientFactory("bot-app", srv.URL, auth.StaticTokenProvider{Token: "bot"}, transport.NewClient(0))
	ctx := context.Background()

	cc, err := f.CreateConnectorClient(ctx, srv.URL, auth.NewAppIdentity("bot-app"), "")
	if err != nil {
		t.Fatalf("CreateConnectorClient() error: %v", err)
	}
	if _, err := cc.SendToConversation(ctx, "c", activity.NewMessage("x")); err != nil {
		t.Fatalf("SendToConversation() error: %v", err)
	}

	anon, err := f.CreateConnectorClient(ctx, srv.URL, auth.NewAnonymousSkillIdentity(), "")
	if err != nil {
		t.Fatalf("CreateConnectorClient() error: %v", err)
	}
	if _, err := anon.SendToConversation(ctx, "c", activity.NewMessage("x")); err != nil {
		t.Fatalf("SendToConversation() error: %v", err)
	}

	if (*calls)[0].auth != "Bearer bot" {
		t.Errorf("authenticated call Authorization = %q", (*calls)[0].auth)
	}
	if (*calls)[1].auth != "" {
		t.Errorf("anonymous call Authorization = %q, want none", (*calls)[1].auth)
	}

	if _, err := f.CreateConnectorClient(ctx, "", nil, ""); err == nil {
		t.Error("expected error for empty service url")
	}
	if _, err := f.CreateUserTokenClient(ctx, nil); err != nil {
		t.Errorf("CreateUserTokenClient() error: %v", err)
	}
}
