// Package store provides durable persistence for conversation state: an
// append-only log of per-turn snapshots with a latest-per-user view.
package store

import (
	"context"
)

// Driver is the database access layer. Implementations live under store/db.
type Driver interface {
	Migrate(ctx context.Context) error

	CreateConversationRecord(ctx context.Context, create *ConversationRecord) (*ConversationRecord, error)
	GetLatestConversationRecord(ctx context.Context, userID string) (*ConversationRecord, error)
	ListConversationRecords(ctx context.Context, find *FindConversationRecord) ([]*ConversationRecord, error)
	ListLatestConversationRecords(ctx context.Context, limit int) ([]*ConversationRecord, error)

	Close() error
}

// Store wraps a Driver. Writes are serialized by the underlying database;
// records are immutable once appended.
type Store struct {
	driver Driver
}

func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateConversationRecord appends one snapshot to the log.
func (s *Store) CreateConversationRecord(ctx context.Context, create *ConversationRecord) (*ConversationRecord, error) {
	return s.driver.CreateConversationRecord(ctx, create)
}

// GetLatestConversationRecord returns the newest snapshot for a user, or nil
// when the user has no history.
func (s *Store) GetLatestConversationRecord(ctx context.Context, userID string) (*ConversationRecord, error) {
	return s.driver.GetLatestConversationRecord(ctx, userID)
}

// ListConversationRecords returns records newest first, optionally filtered
// by user and limited.
func (s *Store) ListConversationRecords(ctx context.Context, find *FindConversationRecord) ([]*ConversationRecord, error) {
	return s.driver.ListConversationRecords(ctx, find)
}

// ListLatestConversationRecords returns the newest record per user, for at
// most limit users.
func (s *Store) ListLatestConversationRecords(ctx context.Context, limit int) ([]*ConversationRecord, error) {
	return s.driver.ListLatestConversationRecords(ctx, limit)
}
