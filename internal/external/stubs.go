package external

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"notekeeper/internal/types"
)

// StubEmailProvider is a no-op EmailProvider for local development and tests.
// It logs each send and records it for inspection.
type StubEmailProvider struct {
	logger *slog.Logger

	mu    sync.Mutex
	sends []types.SendInput
}

// NewStubEmailProvider creates a StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send implements EmailProvider. It never fails and returns a synthetic
// message id.
func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.sends = append(s.sends, input)
	s.mu.Unlock()

	msgID := "stub-" + uuid.New().String()
	s.logger.Info("stub email send",
		"to", input.To,
		"subject", input.Subject,
		"message_id", msgID,
	)
	return msgID, nil
}

// Sends returns a copy of everything sent so far.
func (s *StubEmailProvider) Sends() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sends))
	copy(out, s.sends)
	return out
}

// Compile-time assertion that StubEmailProvider satisfies EmailProvider.
var _ EmailProvider = (*StubEmailProvider)(nil)
