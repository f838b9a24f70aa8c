// Package notify surfaces success/error/info messages to the calling layer.
// The core queues plain-text messages per session; rendering them is the
// caller's business.
package notify

import (
	"context"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/session"
	"github.com/tanatos09/perfectbody/internal/util"

	"go.uber.org/zap"
)

// Sink receives user-facing notifications for a session.
type Sink interface {
	Success(ctx context.Context, sessionID, text string)
	Error(ctx context.Context, sessionID, text string)
	Info(ctx context.Context, sessionID, text string)
}

// FlashSink queues messages in the session store so the next request from
// the same visitor can drain and display them.
type FlashSink struct {
	sessions session.Store
	logger   *zap.Logger
}

// NewFlashSink creates a session-backed notification sink.
func NewFlashSink(sessions session.Store) *FlashSink {
	return &FlashSink{
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

func (s *FlashSink) push(ctx context.Context, sessionID, kind, text string) {
	msg := models.Message{Kind: kind, Text: text, CreatedAt: time.Now()}
	if err := s.sessions.PushMessage(ctx, sessionID, msg); err != nil {
		s.logger.Warn("Failed to queue notification",
			zap.String("session_id", sessionID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

func (s *FlashSink) Success(ctx context.Context, sessionID, text string) {
	s.push(ctx, sessionID, models.MessageSuccess, text)
}

func (s *FlashSink) Error(ctx context.Context, sessionID, text string) {
	s.push(ctx, sessionID, models.MessageError, text)
}

func (s *FlashSink) Info(ctx context.Context, sessionID, text string) {
	s.push(ctx, sessionID, models.MessageInfo, text)
}
