package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"secure-llm-assistant/db"
	"secure-llm-assistant/errs"
)

// DefaultTitle is the title of conversations before their first
// message names them.
const DefaultTitle = "New Chat"

// Store owns the conversation set and the current-conversation
// pointer. It is the single writer: every mutation goes through its
// mutex, and message logs are append-only with monotonic timestamps
// per conversation. Exactly one conversation is current at all times,
// starting with a bootstrap conversation.
type Store struct {
	mu        sync.Mutex
	database  *db.DB
	currentID string
	lastTS    map[string]int64
}

// NewStore opens the store over the database, creating the bootstrap
// conversation when none exists. The most recently updated
// conversation becomes current.
func NewStore(database *db.DB) (*Store, error) {
	s := &Store{
		database: database,
		lastTS:   make(map[string]int64),
	}

	convs, err := database.ListConversations()
	if err != nil {
		return nil, err
	}

	if len(convs) == 0 {
		conv, err := s.createLocked()
		if err != nil {
			return nil, err
		}
		s.currentID = conv.ID
		return s, nil
	}

	s.currentID = convs[0].ID
	return s, nil
}

// createLocked inserts a fresh conversation. Callers hold s.mu or are
// still single-threaded in NewStore.
func (s *Store) createLocked() (*db.Conversation, error) {
	conv := &db.Conversation{
		ID:        ulid.Make().String(),
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
	}
	if err := s.database.InsertConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateConversation creates a new empty conversation and makes it
// current.
func (s *Store) CreateConversation() (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.createLocked()
	if err != nil {
		return nil, err
	}
	s.currentID = conv.ID
	return conv, nil
}

// CurrentID returns the id of the current conversation.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Current returns the current conversation.
func (s *Store) Current() (*db.Conversation, error) {
	return s.database.GetConversation(s.CurrentID())
}

// SwitchCurrent points the store at another existing conversation.
// Message logs are untouched. Unknown ids fail with NotFound.
func (s *Store) SwitchCurrent(id string) error {
	exists, err := s.database.ConversationExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NotFound("conversation", id)
	}

	s.mu.Lock()
	s.currentID = id
	s.mu.Unlock()
	return nil
}

// AppendMessage appends msg to the named conversation and returns the
// stored copy. The timestamp is assigned here: wall clock nanoseconds,
// clamped so it never decreases within the conversation. Messages are
// never reordered or removed afterwards.
func (s *Store) AppendMessage(conversationID string, msg *db.Message) (*db.Message, error) {
	exists, err := s.database.ConversationExists(conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.NotFound("conversation", conversationID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastTS[conversationID]
	if !ok {
		last, err = s.database.LastMessageTimestamp(conversationID)
		if err != nil {
			return nil, err
		}
	}

	ts := time.Now().UnixNano()
	if ts <= last {
		ts = last + 1
	}

	stored := &db.Message{
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Model:          msg.Model,
		Timestamp:      ts,
	}
	id, err := s.database.InsertMessage(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	stored.ID = id
	s.lastTS[conversationID] = ts

	return stored, nil
}

// Messages returns the full message log of a conversation in append
// order.
func (s *Store) Messages(conversationID string) ([]*db.Message, error) {
	exists, err := s.database.ConversationExists(conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.NotFound("conversation", conversationID)
	}
	return s.database.ListMessages(conversationID)
}

// Conversations lists all conversations, most recently active first.
func (s *Store) Conversations() ([]*db.Conversation, error) {
	return s.database.ListConversations()
}

// DeleteConversation removes a conversation and its message log.
// Deleting the current conversation moves the pointer to the most
// recently active remaining one, creating a fresh conversation when
// none is left.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.database.DeleteConversation(id); err != nil {
		return err
	}
	delete(s.lastTS, id)

	if s.currentID != id {
		return nil
	}

	convs, err := s.database.ListConversations()
	if err != nil {
		return err
	}
	if len(convs) > 0 {
		s.currentID = convs[0].ID
		return nil
	}

	conv, err := s.createLocked()
	if err != nil {
		return err
	}
	s.currentID = conv.ID
	return nil
}

// SetTitle renames a conversation.
func (s *Store) SetTitle(conversationID, title string) error {
	exists, err := s.database.ConversationExists(conversationID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NotFound("conversation", conversationID)
	}
	return s.database.UpdateConversationTitle(conversationID, title)
}
