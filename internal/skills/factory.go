// Package skills is the receiving half of skill delegation plus the root
// side helpers: it maps opaque skill conversation ids to the caller's
// conversation reference, re-enters the pipeline for skill callbacks, and
// forwards activities to skills.
package skills

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vivars7/skillrelay/internal/activity"
	relayerrors "github.com/vivars7/skillrelay/internal/errors"
	"github.com/vivars7/skillrelay/internal/storage"
)

// BotConversationReference is what a skill conversation id resolves to: the
// caller's return address and the OAuth scope replies must use.
type BotConversationReference struct {
	ConversationReference activity.ConversationReference `json:"conversationReference"`
	OAuthScope            string                         `json:"oAuthScope"`
}

// ConversationIDFactoryOptions describes the conversation a new skill
// conversation id stands for.
type ConversationIDFactoryOptions struct {
	// Activity is the caller's inbound activity; its addressing is recorded.
	Activity *activity.Activity
	// SkillID names the skill the conversation is delegated to.
	SkillID string
	// OAuthScope is the audience replies to the caller must be sent with.
	OAuthScope string
	// FromBotID is the app id of the delegating bot.
	FromBotID string
}

// ConversationIDFactory mints skill conversation ids and resolves them.
type ConversationIDFactory interface {
	CreateConversationID(ctx context.Context, opts ConversationIDFactoryOptions) (string, error)
	// GetBotConversationReference returns found=false for unknown ids.
	GetBotConversationReference(ctx context.Context, id string) (BotConversationReference, bool, error)
	// DeleteConversationReference is idempotent.
	DeleteConversationReference(ctx context.Context, id string) error
}

// DefaultKeyPrefix namespaces mapping keys in shared storage.
const DefaultKeyPrefix = "skillconv/"

// StorageConversationIDFactory keeps mappings in a Storage. Atomicity per
// key comes from the backend; no locking happens here.
type StorageConversationIDFactory struct {
	store  storage.Storage
	prefix string
	newID  func() string
}

// NewStorageConversationIDFactory creates a factory over store.
func NewStorageConversationIDFactory(store storage.Storage) *StorageConversationIDFactory {
	return &StorageConversationIDFactory{
		store:  store,
		prefix: DefaultKeyPrefix,
		newID:  uuid.NewString,
	}
}

func (f *StorageConversationIDFactory) key(id string) string {
	return f.prefix + id
}

// CreateConversationID records the caller's conversation reference under a
// fresh id and returns the id.
func (f *StorageConversationIDFactory) CreateConversationID(ctx context.Context, opts ConversationIDFactoryOptions) (string, error) {
	if opts.Activity == nil {
		return "", fmt.Errorf("%w: activity is required", relayerrors.ErrInvalidArgument)
	}
	id := f.newID()
	ref := BotConversationReference{
		ConversationReference: opts.Activity.GetConversationReference(),
		OAuthScope:            opts.OAuthScope,
	}
	if err := storage.WriteOne(ctx, f.store, f.key(id), ref); err != nil {
		return "", fmt.Errorf("storing skill conversation %s: %w", id, err)
	}
	return id, nil
}

// GetBotConversationReference loads the mapping for id.
func (f *StorageConversationIDFactory) GetBotConversationReference(ctx context.Context, id string) (BotConversationReference, bool, error) {
	if id == "" {
		return BotConversationReference{}, false, fmt.Errorf("%w: conversation id is required", relayerrors.ErrInvalidArgument)
	}
	ref, found, err := storage.ReadOne[BotConversationReference](ctx, f.store, f.key(id))
	if err != nil {
		return BotConversationReference{}, false, fmt.Errorf("loading skill conversation %s: %w", id, err)
	}
	return ref, found, nil
}

// DeleteConversationReference removes the mapping for id.
func (f *StorageConversationIDFactory) DeleteConversationReference(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: conversation id is required", relayerrors.ErrInvalidArgument)
	}
	return f.store.Delete(ctx, []string{f.key(id)})
}
