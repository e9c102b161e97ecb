package skills

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivars7/skillrelay/internal/activity"
	"github.com/vivars7/skillrelay/internal/adapter"
	"github.com/vivars7/skillrelay/internal/auth"
	"github.com/vivars7/skillrelay/internal/bot"
	"github.com/vivars7/skillrelay/internal/connector"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
	"github.com/vivars7/skillrelay/internal/storage"
)

// ── Fakes ──

type fakeConnector struct {
	mu      sync.Mutex
	sent    []*activity.Activity
	replies []string
	updated []string
	deleted []string
	members []activity.ChannelAccount
}

func (f *fakeConnector) record(a *activity.Activity) *activity.ResourceResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return &activity.ResourceResponse{ID: fmt.Sprintf("m%d", len(f.sent))}
}

func (f *fakeConnector) SendToConversation(_ context.Context, _ string, a *activity.Activity) (*activity.ResourceResponse, error) {
	return f.record(a), nil
}

func (f *fakeConnector) ReplyToActivity(_ context.Context, _ string, activityID string, a *activity.Activity) (*activity.ResourceResponse, error) {
	f.mu.Lock()
	f.replies = append(f.replies, activityID)
	f.mu.Unlock()
	return f.record(a), nil
}

func (f *fakeConnector) UpdateActivity(_ context.Context, _ string, activityID string, _ *activity.Activity) (*activity.ResourceResponse, error) {
	f.mu.Lock()
	f.updated = append(f.updated, activityID)
	f.mu.Unlock()
	return &activity.ResourceResponse{ID: activityID}, nil
}

func (f *fakeConnector) DeleteActivity(_ context.Context, conversationID, activityID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, conversationID+"/"+activityID)
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) CreateConversation(context.Context, *activity.ConversationParameters) (*activity.ConversationResourceResponse, error) {
	return &activity.ConversationResourceResponse{ID: "new-conv"}, nil
}

func (f *fakeConnector) GetConversationMembers(context.Context, string) ([]activity.ChannelAccount, error) {
	return f.members, nil
}

func (f *fakeConnector) GetConversationMember(_ context.Context, _ string, memberID string) (*activity.ChannelAccount, error) {
	return &activity.ChannelAccount{ID: memberID, Name: "member " + memberID}, nil
}

func (f *fakeConnector) sentActivities() []*activity.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*activity.Activity(nil), f.sent...)
}

type fakeTokenClient struct{}

func (fakeTokenClient) GetUserToken(context.Context, string, string, string, string) (*activity.TokenResponse, error) {
	return nil, nil
}

func (fakeTokenClient) GetSignInResource(context.Context, string, *activity.Activity, string) (*activity.SignInResource, error) {
	return &activity.SignInResource{}, nil
}

func (fakeTokenClient) SignOutUser(context.Context, string, string, string) error { return nil }

func (fakeTokenClient) ExchangeToken(context.Context, string, string, string, activity.TokenExchangeRequest) (*activity.TokenResponse, error) {
	return nil, nil
}

type fakeClientFactory struct {
	conn      *fakeConnector
	mu        sync.Mutex
	audiences []string
}

func (f *fakeClientFactory) CreateConnectorClient(_ context.Context, _ string, _ *auth.ClaimsIdentity, audience string) (connector.ConnectorClient, error) {
	f.mu.Lock()
	f.audiences = append(f.audiences, audience)
	f.mu.Unlock()
	return f.conn, nil
}

func (f *fakeClientFactory) CreateUserTokenClient(context.Context, *auth.ClaimsIdentity) (connector.UserTokenClient, error) {
	return fakeTokenClient{}, nil
}

// recordingBot captures the activity of every turn it runs.
type recordingBot struct {
	mu    sync.Mutex
	turns []*activity.Activity
}

func (b *recordingBot) OnTurn(_ context.Context, tc *bot.TurnContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, tc.Activity().Clone())
	return nil
}

func (b *recordingBot) seen() []*activity.Activity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*activity.Activity(nil), b.turns...)
}

// ── Fixture ──

type handlerFixture struct {
	handler *Handler
	store   *storage.MemoryStorage
	ids     *StorageConversationIDFactory
	conn    *fakeConnector
	clients *fakeClientFactory
	bot     *recordingBot
	base    *adapter.CloudAdapterBase
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	ids := NewStorageConversationIDFactory(store)
	conn := &fakeConnector{}
	clients := &fakeClientFactory{conn: conn}
	base := adapter.NewCloudAdapterBase(clients, adapter.Options{})
	b := &recordingBot{}
	return &handlerFixture{
		handler: NewHandler(base, b, ids, nil),
		store:   store,
		ids:     ids,
		conn:    conn,
		clients: clients,
		bot:     b,
		base:    base,
	}
}

// seed stores a mapping for id pointing at the root conversation.
func (fx *handlerFixture) seed(t *testing.T, id string) {
	t.Helper()
	ref := BotConversationReference{
		ConversationReference: callerActivity().GetConversationReference(),
		OAuthScope:            auth.ChannelAudience,
	}
	require.NoError(t, storage.WriteOne(context.Background(), fx.store, DefaultKeyPrefix+id, ref))
}

func (fx *handlerFixture) mapped(t *testing.T, id string) bool {
	t.Helper()
	_, found, err := fx.ids.GetBotConversationReference(context.Background(), id)
	require.NoError(t, err)
	return found
}

func skillClaims() *auth.ClaimsIdentity {
	return auth.NewClaimsIdentity(map[string]string{
		auth.AudienceClaim: "root-app",
		auth.AppIDClaim:    "skill-app",
		auth.VersionClaim:  "1.0",
	}, true, auth.BearerAuthType)
}

// ── Send and reply ──

func TestHandler_SendToConversationReachesChannel(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	resp, err := fx.handler.OnSendToConversation(context.Background(), skillClaims(), "conv-xyz",
		&activity.Activity{Type: activity.TypeMessage, Text: "hello from skill"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.ID)

	sent := fx.conn.sentActivities()
	require.Len(t, sent, 1)
	assert.Equal(t, "hello from skill", sent[0].Text)
	assert.Equal(t, "root-conv", sent[0].Conversation.ID)
	assert.Equal(t, "https://channel.example/", sent[0].ServiceURL)
	assert.Equal(t, "user", sent[0].Recipient.ID)
	assert.Equal(t, "root-bot", sent[0].From.ID)
	assert.Equal(t, []string{"user-act-1"}, fx.conn.replies)
	assert.Equal(t, []string{auth.ChannelAudience}, fx.clients.audiences)
	assert.Empty(t, fx.bot.seen(), "plain messages must not reach the bot")
}

func TestHandler_ReplyToActivityTargetsActivity(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	_, err := fx.handler.OnReplyToActivity(context.Background(), skillClaims(), "conv-xyz", "act-9",
		&activity.Activity{Type: activity.TypeMessage, Text: "reply"})
	require.NoError(t, err)
	assert.Equal(t, []string{"act-9"}, fx.conn.replies)
}

func TestHandler_UnknownConversation(t *testing.T) {
	fx := newHandlerFixture(t)

	_, err := fx.handler.OnSendToConversation(context.Background(), skillClaims(), "conv-missing",
		&activity.Activity{Type: activity.TypeMessage, Text: "hi"})
	assert.ErrorIs(t, err, relayerrors.ErrConversationNotFound)
	assert.Empty(t, fx.conn.sentActivities())
	assert.Empty(t, fx.clients.audiences)
}

func TestHandler_Preconditions(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")
	ctx := context.Background()

	_, err := fx.handler.OnSendToConversation(ctx, nil, "conv-xyz", activity.NewMessage("hi"))
	assert.ErrorIs(t, err, relayerrors.ErrInvalidArgument)

	_, err = fx.handler.OnSendToConversation(ctx, skillClaims(), "conv-xyz", nil)
	assert.ErrorIs(t, err, relayerrors.ErrInvalidArgument)

	_, err = fx.handler.OnSendToConversation(ctx, skillClaims(), "", activity.NewMessage("hi"))
	assert.ErrorIs(t, err, relayerrors.ErrInvalidArgument)
}

// ── Dispatch to the bot ──

func TestHandler_EndOfConversationDeletesMapping(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	resp, err := fx.handler.OnSendToConversation(context.Background(), skillClaims(), "conv-xyz",
		&activity.Activity{Type: activity.TypeEndOfConversation, Code: activity.EndCodeCompletedSuccessfully})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)

	assert.False(t, fx.mapped(t, "conv-xyz"))

	turns := fx.bot.seen()
	require.Len(t, turns, 1)
	assert.Equal(t, activity.TypeEndOfConversation, turns[0].Type)
	assert.Equal(t, activity.EndCodeCompletedSuccessfully, turns[0].Code)
	assert.Equal(t, "botToBot:skill-app", turns[0].CallerID)
	assert.Equal(t, "root-conv", turns[0].Conversation.ID)
	assert.Empty(t, fx.conn.sentActivities())
}

func TestHandler_EventKeepsMapping(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	_, err := fx.handler.OnSendToConversation(context.Background(), skillClaims(), "conv-xyz",
		&activity.Activity{Type: activity.TypeEvent, Name: "weather.result", Value: map[string]any{"temp": 21}})
	require.NoError(t, err)

	assert.True(t, fx.mapped(t, "conv-xyz"))
	turns := fx.bot.seen()
	require.Len(t, turns, 1)
	assert.Equal(t, activity.TypeEvent, turns[0].Type)
	assert.Equal(t, "weather.result", turns[0].Name)
	assert.Equal(t, map[string]any{"temp": 21}, turns[0].Value)
}

func TestHandler_CommandRouting(t *testing.T) {
	tests := []struct {
		name      string
		typ       activity.Type
		cmd       string
		wantBot   int
		wantSends int
	}{
		{"application command goes to channel", activity.TypeCommand, "application/search", 0, 1},
		{"application result goes to channel", activity.TypeCommandResult, "application/search", 0, 1},
		{"custom command goes to bot", activity.TypeCommand, "custom/reset", 1, 0},
		{"custom result goes to bot", activity.TypeCommandResult, "custom/reset", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture(t)
			fx.seed(t, "conv-xyz")

			_, err := fx.handler.OnSendToConversation(context.Background(), skillClaims(), "conv-xyz",
				&activity.Activity{Type: tt.typ, Name: tt.cmd})
			require.NoError(t, err)
			assert.Len(t, fx.bot.seen(), tt.wantBot)
			assert.Len(t, fx.conn.sentActivities(), tt.wantSends)
		})
	}
}

func TestHandler_ReferenceInTurnState(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	var got BotConversationReference
	var ok bool
	h := NewHandler(fx.base, bot.Callback(func(_ context.Context, tc *bot.TurnContext) error {
		got, ok = bot.GetState(tc.TurnState(), ConversationReferenceKey)
		return nil
	}), fx.ids, nil)

	_, err := h.OnSendToConversation(context.Background(), skillClaims(), "conv-xyz",
		&activity.Activity{Type: activity.TypeEvent, Name: "ping"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auth.ChannelAudience, got.OAuthScope)
	assert.Equal(t, "root-conv", got.ConversationReference.ConversationID())
}

// ── Update, delete, members ──

func TestHandler_UpdateActivity(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	resp, err := fx.handler.OnUpdateActivity(context.Background(), skillClaims(), "conv-xyz", "act-5",
		activity.NewMessage("edited"))
	require.NoError(t, err)
	assert.Equal(t, "act-5", resp.ID)
	assert.Equal(t, []string{"act-5"}, fx.conn.updated)
}

func TestHandler_DeleteActivity(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")

	require.NoError(t, fx.handler.OnDeleteActivity(context.Background(), skillClaims(), "conv-xyz", "act-5"))
	assert.Equal(t, []string{"root-conv/act-5"}, fx.conn.deleted)

	err := fx.handler.OnDeleteActivity(context.Background(), skillClaims(), "conv-xyz", "")
	assert.ErrorIs(t, err, relayerrors.ErrInvalidArgument)
}

func TestHandler_Members(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "conv-xyz")
	fx.conn.members = []activity.ChannelAccount{{ID: "user"}, {ID: "root-bot"}}
	ctx := context.Background()

	members, err := fx.handler.OnGetConversationMembers(ctx, skillClaims(), "conv-xyz")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	member, err := fx.handler.OnGetConversationMember(ctx, skillClaims(), "conv-xyz", "user")
	require.NoError(t, err)
	assert.Equal(t, "user", member.ID)

	_, err = fx.handler.OnGetConversationMember(ctx, skillClaims(), "conv-xyz", "")
	assert.ErrorIs(t, err, relayerrors.ErrInvalidArgument)
}

func TestHandler_UnsupportedOperations(t *testing.T) {
	fx := newHandlerFixture(t)
	h := fx.handler
	ctx := context.Background()
	claims := skillClaims()

	_, err := h.OnCreateConversation(ctx, claims, &activity.ConversationParameters{})
	assert.ErrorIs(t, err, relayerrors.ErrNotImplemented)
	assert.ErrorIs(t, h.OnGetConversations(ctx, claims, ""), relayerrors.ErrNotImplemented)
	_, err = h.OnGetActivityMembers(ctx, claims, "conv-xyz", "act-1")
	assert.ErrorIs(t, err, relayerrors.ErrNotImplemented)
	assert.ErrorIs(t, h.OnGetConversationPagedMembers(ctx, claims, "conv-xyz"), relayerrors.ErrNotImplemented)
	assert.ErrorIs(t, h.OnDeleteConversationMember(ctx, claims, "conv-xyz", "user"), relayerrors.ErrNotImplemented)
	assert.ErrorIs(t, h.OnSendConversationHistory(ctx, claims, "conv-xyz"), relayerrors.ErrNotImplemented)
	assert.ErrorIs(t, h.OnUploadAttachment(ctx, claims, "conv-xyz"), relayerrors.ErrNotImplemented)
}
