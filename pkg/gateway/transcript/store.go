// Package transcript persists per-conversation event logs and session
// metadata. Appends are totally ordered per conversation; records are never
// rewritten except by whole-session deletion.
package transcript

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Event kinds appended per turn.
const (
	EventUserMessage      = "user.message"
	EventAssistantMessage = "assistant.message"
	EventToolCall         = "tool.call"
	EventSessionDone      = "session.done"
)

// Session is the mutable metadata record for one conversation. Title starts
// empty and is back-filled asynchronously after the first turn.
type Session struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one append-only transcript record.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"index" json:"session_id"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the sqlite-backed transcript store.
type Store struct {
	db  *gorm.DB
	log logr.Logger
}

// NewStore opens (creating if needed) the transcript database at path.
func NewStore(path string, log logr.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTranscript, "failed to open database", err)
	}
	if err := db.AutoMigrate(&Session{}, &Event{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTranscript, "failed to migrate schema", err)
	}
	return &Store{db: db, log: log.WithName("transcript")}, nil
}

// Create records metadata for a new conversation with empty title and active
// status. Creating an already-known conversation is a no-op.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	sess := Session{ID: sessionID, Status: StatusActive}
	if err := s.db.WithContext(ctx).FirstOrCreate(&sess, Session{ID: sessionID}).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeTranscript, "failed to create session", err)
	}
	return nil
}

// AppendEvent appends one record to the conversation's log and touches the
// metadata's UpdatedAt.
func (s *Store) AppendEvent(ctx context.Context, sessionID, kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeTranscript, "failed to marshal event data", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Event{
			SessionID: sessionID,
			Type:      kind,
			Data:      string(payload),
			Timestamp: time.Now(),
		}).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeTranscript, "failed to append event", err)
		}
		if err := tx.Model(&Session{}).Where("id = ?", sessionID).
			Update("updated_at", time.Now()).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeTranscript, "failed to touch session", err)
		}
		return nil
	})
}

// UpdateTitle sets the session title.
func (s *Store) UpdateTitle(ctx context.Context, sessionID, title string) error {
	if err := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", sessionID).
		Update("title", title).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeTranscript, "failed to update title", err)
	}
	return nil
}

// UpdateStatus sets the session status.
func (s *Store) UpdateStatus(ctx context.Context, sessionID, status string) error {
	if err := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", sessionID).
		Update("status", status).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeTranscript, "failed to update status", err)
	}
	return nil
}

// ListSessions returns all session metadata, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTranscript, "failed to list sessions", err)
	}
	return sessions, nil
}

// GetEvents returns the conversation's full event log in append order.
func (s *Store) GetEvents(ctx context.Context, sessionID string) ([]Event, error) {
	var events []Event
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("id ASC").Find(&events).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTranscript, "failed to load events", err)
	}
	return events, nil
}

// DeleteSession removes the conversation's metadata and its whole event log.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&Event{}).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeTranscript, "failed to delete events", err)
		}
		if err := tx.Where("id = ?", sessionID).Delete(&Session{}).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeTranscript, "failed to delete session", err)
		}
		return nil
	})
}
