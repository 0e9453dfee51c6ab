// Package store provides the persistence facade for chat records and
// messages. All database work goes through the Driver interface so the
// backend can run on sqlite, postgres, or mysql.
package store

import "context"

// Driver is the contract every database backend implements.
type Driver interface {
	EnsureSchema(ctx context.Context) error

	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	ListChats(ctx context.Context, find *FindChat) ([]*Chat, error)
	GetChat(ctx context.Context, find *FindChat) (*Chat, error)
	DeleteChat(ctx context.Context, id string) error

	CreateMessages(ctx context.Context, creates []*Message) error
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)

	Close() error
}

// Store wraps a Driver.
type Store struct {
	driver Driver
}

// New builds a Store backed by the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// EnsureSchema creates the chat tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.driver.EnsureSchema(ctx)
}

// CreateChat persists a chat record. Creation is idempotent: a record with
// the same id already present leaves the stored row untouched and returns it.
func (s *Store) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	return s.driver.CreateChat(ctx, create)
}

// ListChats lists chat records matching the given filter.
func (s *Store) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	return s.driver.ListChats(ctx, find)
}

// GetChat returns the first chat matching the filter, or nil when absent.
func (s *Store) GetChat(ctx context.Context, find *FindChat) (*Chat, error) {
	return s.driver.GetChat(ctx, find)
}

// DeleteChat deletes a chat and all its messages (cascade).
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.driver.DeleteChat(ctx, id)
}

// CreateMessages appends a batch of messages to their chats.
func (s *Store) CreateMessages(ctx context.Context, creates []*Message) error {
	return s.driver.CreateMessages(ctx, creates)
}

// ListMessages returns all messages for a chat, oldest first.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.driver.Close()
}
