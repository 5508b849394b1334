// Package jobs dispatches asynchronous scrape jobs: accept immediately with
// a queue position, run through the owning session's gate in the background,
// and report the outcome through a one-shot webhook callback.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/logging"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/session"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/webhook"
)

// Dispatch statuses reported to the caller at submit time.
const (
	StatusRunning = "running"
	StatusQueued  = "queued"
)

// Work is an async job body. Its return value becomes the callback's data.
type Work func(ctx context.Context, s *session.Session) (any, error)

// Ticket is the immediate response to an async submission.
type Ticket struct {
	TaskID        string `json:"task_id"`
	IdentitySafe  string `json:"identity_safe"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
	Message       string `json:"message"`
}

// callbackPayload is the one-shot webhook body.
type callbackPayload struct {
	OK           bool      `json:"ok"`
	TaskID       string    `json:"task_id"`
	IdentitySafe string    `json:"identity_safe"`
	CompletedAt  time.Time `json:"completed_at"`
	Result       any       `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Dispatcher runs accepted jobs in the background. Ordering and exclusivity
// come entirely from the session gate; the dispatcher itself holds no queue.
type Dispatcher struct {
	mgr     *session.Manager
	sender  *webhook.Sender
	journal *journal.Store
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(mgr *session.Manager, sender *webhook.Sender, store *journal.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mgr:     mgr,
		sender:  sender,
		journal: store,
		logger:  logger,
	}
}

// Submit accepts an async job for an identity and returns its ticket right
// away. Position 1 means the job starts immediately; higher positions wait
// behind earlier async jobs on the same session. If callbackURL is empty no
// callback is sent; the outcome is still journaled.
func (d *Dispatcher) Submit(rawIdentity, kind, callbackURL string, work Work) (Ticket, error) {
	s, err := d.mgr.GetOrCreate(rawIdentity)
	if err != nil {
		return Ticket{}, err
	}

	taskID := ulid.Make().String()
	position := s.EnqueueAsync()

	status := StatusQueued
	message := fmt.Sprintf("queued because a job is running, queue position #%d", position)
	if position == 1 {
		status = StatusRunning
		message = "started in background"
	}
	t := Ticket{
		TaskID:        taskID,
		IdentitySafe:  s.IdentitySafe,
		Status:        status,
		QueuePosition: position,
		Message:       message,
	}

	if err := d.journal.RecordSubmitted(taskID, s.IdentitySafe, kind, status, position); err != nil {
		d.logger.Warn("failed to journal task", "task_id", taskID, "error", err)
	}
	d.logger.Info("async job accepted",
		"task_id", taskID, "identity", s.IdentitySafe, "kind", kind, "queue_position", position)

	d.wg.Add(1)
	go d.execute(taskID, rawIdentity, callbackURL, s, work)

	return t, nil
}

func (d *Dispatcher) execute(taskID, rawIdentity, callbackURL string, s *session.Session, work Work) {
	defer d.wg.Done()

	ctx := logging.WithTaskID(context.Background(), taskID)

	start := time.Now()
	var data any
	err := d.mgr.RunForUser(ctx, rawIdentity, func(ctx context.Context, s *session.Session) error {
		var workErr error
		data, workErr = work(ctx, s)
		return workErr
	})
	// The slot is released as soon as the gate work is done: a submission
	// arriving while the callback is still in flight sees an empty queue.
	s.DequeueAsync()

	if jerr := d.journal.RecordResult(taskID, err); jerr != nil {
		d.logger.Warn("failed to journal task result", "task_id", taskID, "error", jerr)
	}

	if err != nil {
		d.logger.Warn("async job failed", "task_id", taskID, "identity", s.IdentitySafe, "took", time.Since(start), "error", err)
	} else {
		d.logger.Info("async job completed", "task_id", taskID, "identity", s.IdentitySafe, "took", time.Since(start))
	}

	if callbackURL == "" {
		return
	}
	payload := callbackPayload{
		OK:           err == nil,
		TaskID:       taskID,
		IdentitySafe: s.IdentitySafe,
		CompletedAt:  time.Now().UTC(),
	}
	if err != nil {
		payload.Error = err.Error()
	} else {
		payload.Result = data
	}
	// Single attempt; the sender logs delivery failures.
	_ = d.sender.Send(ctx, callbackURL, payload)
}

// Wait blocks until every dispatched job (and its callback) has finished,
// or the context expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
