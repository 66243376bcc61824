// ABOUTME: Service produces UI-ready conversation, group and history lists for a user
// ABOUTME: Reads fail soft into structured results; writes propagate their errors

package conversations

import (
	"context"
	"log/slog"
	"time"

	"github.com/lavoro/lavoro-chat/internal/api"
	"github.com/lavoro/lavoro-chat/internal/chat"
	"github.com/lavoro/lavoro-chat/internal/enrich"
	"github.com/lavoro/lavoro-chat/internal/store"
)

// ChatAPI is the subset of the REST client the service calls.
type ChatAPI interface {
	UserConversations(ctx context.Context, userID string) ([]chat.ConversationRecord, error)
	Conversation(ctx context.Context, userID, peerID string) (*api.ConversationPayload, error)
	UserGroups(ctx context.Context, userID string) ([]chat.GroupRecord, error)
	GroupMessages(ctx context.Context, groupID, userID string) (*api.GroupPayload, error)
	Contacts(ctx context.Context, userID string) ([]chat.RawUser, error)

	SendMessage(ctx context.Context, msg api.OutgoingMessage, attachment *api.Attachment) (*chat.Message, error)
	SendGroupMessage(ctx context.Context, msg api.OutgoingGroupMessage, attachment *api.Attachment) (*chat.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	DeleteGroupMessage(ctx context.Context, messageID string) error
	CreateGroup(ctx context.Context, group api.NewGroup, avatar *api.Attachment) (*chat.GroupRecord, error)
	AddGroupMember(ctx context.Context, groupID, userID string) (*chat.GroupRecord, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (*chat.GroupRecord, error)
}

// Service is the conversation layer between the REST API, the local snapshot
// store and sender enrichment. It is the only writer of the snapshot keys.
type Service struct {
	api      ChatAPI
	store    store.Store
	enricher *enrich.Enricher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Service.
func New(chatAPI ChatAPI, st store.Store, enricher *enrich.Enricher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      chatAPI,
		store:    st,
		enricher: enricher,
		logger:   logger.With("component", "conversations"),
		now:      wallClock,
	}
}

// wallClock returns the current time in UTC without a monotonic reading, so
// normalized timestamps survive a snapshot round-trip unchanged.
func wallClock() time.Time {
	return time.Now().UTC().Round(0)
}

// ConversationList is the result of a conversation list read.
type ConversationList struct {
	OK            bool
	Conversations []chat.Conversation // never nil
	FromCache     bool
	Error         string
}

// ConversationHistory is the result of a single conversation read.
type ConversationHistory struct {
	OK       bool
	Peer     chat.UserDisplay
	Messages []chat.Message // never nil
	Error    string
}

// GroupList is the result of a group list read.
type GroupList struct {
	OK        bool
	Groups    []chat.GroupConversation // never nil
	FromCache bool
	Error     string
}

// GroupHistory is the result of a group message read.
type GroupHistory struct {
	OK       bool
	Group    *chat.GroupConversation
	Messages []chat.Message // never nil
	Error    string
}

// ContactList is the result of a contacts read.
type ContactList struct {
	OK       bool
	Contacts []chat.UserDisplay // never nil
	Error    string
}

// FetchUserConversations fetches and normalizes the user's conversations and
// persists them on success. Failures yield {OK:false} with an empty list.
func (s *Service) FetchUserConversations(ctx context.Context, userID string) ConversationList {
	records, err := s.api.UserConversations(ctx, userID)
	if err != nil {
		s.logger.Error("fetching conversations failed", "user_id", userID, "error", err)
		return ConversationList{Conversations: []chat.Conversation{}, Error: err.Error()}
	}

	now := s.now()
	convs := make([]chat.Conversation, 0, len(records))
	for _, r := range records {
		convs = append(convs, r.Normalize(now))
	}

	s.PersistConversations(ctx, userID, convs)

	s.logger.Debug("fetched conversations", "user_id", userID, "count", len(convs))
	return ConversationList{OK: true, Conversations: convs}
}

// ConversationsWithFallback fetches the list and, on failure, serves the
// persisted snapshot instead.
func (s *Service) ConversationsWithFallback(ctx context.Context, userID string) ConversationList {
	list := s.FetchUserConversations(ctx, userID)
	if list.OK {
		return list
	}

	list.Conversations = s.LoadPersistedConversations(ctx, userID)
	list.FromCache = true
	return list
}

// FetchConversation fetches the message history with peerID. Messages are
// normalized and enriched; the peer record gets the display defaults.
func (s *Service) FetchConversation(ctx context.Context, userID, peerID string) ConversationHistory {
	payload, err := s.api.Conversation(ctx, userID, peerID)
	if err != nil {
		s.logger.Error("fetching conversation failed",
			"user_id", userID,
			"peer_id", peerID,
			"error", err)
		return ConversationHistory{Messages: []chat.Message{}, Error: err.Error()}
	}

	peer := chat.RawUser{ID: peerID}
	if payload.User != nil {
		peer = *payload.User
		if peer.ID == "" {
			peer.ID = peerID
		}
	}

	return ConversationHistory{
		OK:       true,
		Peer:     peer.Display(),
		Messages: s.prepareMessages(ctx, payload.Messages),
	}
}

// FetchUserGroups fetches and normalizes the user's groups and persists them
// on success.
func (s *Service) FetchUserGroups(ctx context.Context, userID string) GroupList {
	records, err := s.api.UserGroups(ctx, userID)
	if err != nil {
		s.logger.Error("fetching groups failed", "user_id", userID, "error", err)
		return GroupList{Groups: []chat.GroupConversation{}, Error: err.Error()}
	}

	now := s.now()
	groups := make([]chat.GroupConversation, 0, len(records))
	for _, r := range records {
		if r.IsActive != nil && !*r.IsActive {
			continue
		}
		groups = append(groups, r.Normalize(now))
	}

	s.PersistGroups(ctx, userID, groups)
	return GroupList{OK: true, Groups: groups}
}

// GroupsWithFallback fetches the group list and, on failure, serves the
// persisted snapshot instead.
func (s *Service) GroupsWithFallback(ctx context.Context, userID string) GroupList {
	list := s.FetchUserGroups(ctx, userID)
	if list.OK {
		return list
	}

	list.Groups = s.LoadPersistedGroups(ctx, userID)
	list.FromCache = true
	return list
}

// FetchGroupMessages fetches a group's history as seen by userID.
func (s *Service) FetchGroupMessages(ctx context.Context, groupID, userID string) GroupHistory {
	payload, err := s.api.GroupMessages(ctx, groupID, userID)
	if err != nil {
		s.logger.Error("fetching group messages failed",
			"group_id", groupID,
			"user_id", userID,
			"error", err)
		return GroupHistory{Messages: []chat.Message{}, Error: err.Error()}
	}

	history := GroupHistory{
		OK:       true,
		Messages: s.prepareMessages(ctx, payload.Messages),
	}
	if payload.Group != nil {
		group := payload.Group.Normalize(s.now())
		history.Group = &group
	}
	return history
}

// FetchContacts fetches the users userID can start a conversation with.
func (s *Service) FetchContacts(ctx context.Context, userID string) ContactList {
	users, err := s.api.Contacts(ctx, userID)
	if err != nil {
		s.logger.Error("fetching contacts failed", "user_id", userID, "error", err)
		return ContactList{Contacts: []chat.UserDisplay{}, Error: err.Error()}
	}

	contacts := make([]chat.UserDisplay, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, u.Display())
	}
	return ContactList{OK: true, Contacts: contacts}
}

// prepareMessages normalizes ids and timestamps, then enriches senders.
func (s *Service) prepareMessages(ctx context.Context, msgs []chat.Message) []chat.Message {
	if len(msgs) == 0 {
		return []chat.Message{}
	}
	normalized := chat.NormalizeMessages(msgs, s.now())
	if s.enricher == nil {
		return normalized
	}
	return s.enricher.EnrichMessages(ctx, normalized)
}
