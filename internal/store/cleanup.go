package store

import (
	"context"
	"log"
	"time"

	"github.com/kafgate/kafgate/internal/ids"
)

const (
	dedupeTTLMs       = int64(24 * time.Hour / time.Millisecond)
	rateLimitWindowMs = int64(60 * time.Second / time.Millisecond)
	rateRetentionMs   = 10 * rateLimitWindowMs
	auditRetentionMs  = int64(30 * 24 * time.Hour / time.Millisecond)
	auditCheckEveryMs = int64(24 * time.Hour / time.Millisecond)
)

// RunCleanup drives a single background goroutine that ticks every 5
// minutes and invokes each store's cleanup method once its own
// last_cleanup_ms bookkeeping shows it is due. It generalizes what the
// persisted stores previously did ad hoc into one scheduler loop and
// returns when ctx is cancelled.
func (s *Store) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanupTick()
		}
	}
}

func (s *Store) runCleanupTick() {
	s.cleanupIfDue("dedupe", time.Hour.Milliseconds(), func() (int64, error) {
		return s.CleanupDedupe(dedupeTTLMs)
	})
	s.cleanupIfDue("rate_limit", time.Hour.Milliseconds(), func() (int64, error) {
		return s.CleanupRateLimitEvents(rateRetentionMs)
	})
	s.cleanupIfDue("audit", auditCheckEveryMs, func() (int64, error) {
		return s.CleanupAudit(auditRetentionMs)
	})
	s.cleanupIfDue("webhook_replies", time.Hour.Milliseconds(), func() (int64, error) {
		return s.CleanupWebhookReplies()
	})
}

func (s *Store) cleanupIfDue(name string, cadenceMs int64, fn func() (int64, error)) {
	due, err := s.cleanupDue(name, cadenceMs)
	if err != nil {
		log.Printf("store: cleanup due-check for %s failed: %v", name, err)
		return
	}
	if !due {
		return
	}
	deleted, err := fn()
	if err != nil {
		log.Printf("store: cleanup %s failed: %v", name, err)
		return
	}
	if err := s.markCleanupRun(name); err != nil {
		log.Printf("store: mark cleanup run for %s failed: %v", name, err)
	}
	if deleted > 0 {
		log.Printf("store: cleanup %s removed %d rows", name, deleted)
	}
}

func (s *Store) cleanupDue(name string, cadenceMs int64) (bool, error) {
	var lastMs int64
	err := s.db.QueryRow(`SELECT last_cleanup_ms FROM store_cleanup_state WHERE store_name = ?`, name).Scan(&lastMs)
	if err != nil {
		// No row yet means due now.
		return true, nil
	}
	return ids.NowMs()-lastMs >= cadenceMs, nil
}

func (s *Store) markCleanupRun(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO store_cleanup_state (store_name, last_cleanup_ms) VALUES (?, ?)
		 ON CONFLICT(store_name) DO UPDATE SET last_cleanup_ms = excluded.last_cleanup_ms`,
		name, ids.NowMs(),
	)
	return err
}
