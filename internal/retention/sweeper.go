package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adhocore/gronx"
	"github.com/jmoiron/sqlx"

	"huru-chat/internal/observability"
	"huru-chat/internal/repositories"
)

// sweepLockID identifies the cluster-wide advisory lock held while a sweep
// runs. Two instances sharing a database cannot sweep concurrently.
const sweepLockID = 74120991

// Sweeper deletes messages that every recipient has read once the earliest
// read is older than the retention window.
type Sweeper struct {
	db       *sqlx.DB
	messages repositories.MessageRepository
	cron     string
	window   time.Duration
}

// NewSweeper constructs a Sweeper.
func NewSweeper(db *sqlx.DB, messages repositories.MessageRepository, cron string, window time.Duration) (*Sweeper, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cron)
	}
	return &Sweeper{db: db, messages: messages, cron: cron, window: window}, nil
}

// Start runs the sweep schedule until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	log.Printf("retention sweeper started cron=%q window=%s", s.cron, s.window)
	go s.runScheduler(ctx)
}

func (s *Sweeper) runScheduler(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			log.Printf("retention next tick failed: %v", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			log.Printf("retention sweeper stopping")
			return
		}

		if err := s.RunOnce(ctx); err != nil {
			log.Printf("retention sweep failed: %v", err)
		}
	}
}

// RunOnce executes a single sweep. The run holds a session advisory lock
// for its whole duration; if another instance holds it the run is skipped
// rather than queued.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire sweep connection: %w", err)
	}
	defer conn.Close()

	var acquired bool
	if err := conn.GetContext(ctx, &acquired, `SELECT pg_try_advisory_lock($1)`, sweepLockID); err != nil {
		return fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		log.Printf("retention sweep already in progress, skipping run")
		return nil
	}
	defer func() {
		var released bool
		if err := conn.GetContext(context.Background(), &released, `SELECT pg_advisory_unlock($1)`, sweepLockID); err != nil {
			log.Printf("retention lease release failed: %v", err)
		}
	}()

	deleted, err := s.sweep(ctx)

	observability.IncSweepRun()
	observability.AddSweepDeleted(deleted)
	log.Printf("retention sweep finished deleted=%d", deleted)
	return err
}

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	candidates, err := s.messages.ListSweepCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sweep candidates: %w", err)
	}

	cutoff := time.Now().Add(-s.window)
	deleted := 0
	for _, candidate := range candidates {
		// Deletions already committed are final; the run only checks for
		// cancellation between messages.
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}

		if !Expired(candidate, cutoff) {
			continue
		}

		if err := s.messages.HardDelete(ctx, candidate.MessageID); err != nil {
			return deleted, fmt.Errorf("delete message %d: %w", candidate.MessageID, err)
		}
		deleted++
	}
	return deleted, nil
}

// Expired reports whether a candidate is past retention: every recipient
// has read it and the earliest read predates the cutoff. Messages with no
// recipients are never swept.
func Expired(candidate repositories.SweepCandidate, cutoff time.Time) bool {
	if len(candidate.Recipients) == 0 {
		return false
	}

	var earliest time.Time
	for _, userID := range candidate.Recipients {
		readAt, ok := candidate.ReadAt[userID]
		if !ok {
			return false
		}
		if earliest.IsZero() || readAt.Before(earliest) {
			earliest = readAt
		}
	}
	return earliest.Before(cutoff)
}
