package service

import (
	"context"
	"sync"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditServiceImpl writes audit entries to the log and, when a repository is
// configured, to storage. Persistence happens off the request path.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	evt := s.log.Info().
		Bool("audit", true).
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("ip", entry.IPAddress)
	if entry.ActorID != nil {
		evt = evt.Str("actor_id", entry.ActorID.String())
	}
	evt.Msg("audit")

	if s.repo == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}

// Wait blocks until pending writes finish. Called on shutdown.
func (s *AuditServiceImpl) Wait() {
	s.wg.Wait()
}
