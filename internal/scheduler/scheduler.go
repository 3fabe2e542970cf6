// Package scheduler fires configured study reminders on their cron
// schedules. A due reminder becomes an ordinary command envelope, stamped
// with the reminder's channel as source so the reply flows back through
// that channel's adapter.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/estudolab/estudai/internal/mcp"
)

// Dispatcher feeds reminder commands into the routing layer.
type Dispatcher interface {
	DispatchAsync(ctx context.Context, msg *mcp.Message)
}

// Job is one reminder: a five-field cron expression and the command it
// fires on behalf of a user.
type Job struct {
	Schedule string
	Command  string
	Topico   string
	UserID   string
	Channel  string
	ChatID   int64
}

// envelope builds the command as if the user had typed it on the channel.
func (j Job) envelope() *mcp.Message {
	params := map[string]any{}
	if j.Topico != "" {
		params["topico"] = j.Topico
	}
	msg := mcp.NewCommand(j.Channel, j.Command, params)
	msg.UserID = j.UserID
	switch j.Channel {
	case "telegram":
		msg.Context["chat_id"] = j.ChatID
	case "discord":
		msg.Context["channel_id"] = strconv.FormatInt(j.ChatID, 10)
	}
	return msg
}

// Scheduler evaluates the job set once a minute. The set can be swapped at
// runtime via Update; the next tick sees the new one.
type Scheduler struct {
	dispatcher Dispatcher
	gron       *gronx.Gronx
	now        func() time.Time

	mu   sync.Mutex
	jobs []Job
}

// New builds a scheduler over the given job set.
func New(dispatcher Dispatcher, jobs []Job) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		gron:       gronx.New(),
		now:        time.Now,
	}
	s.Update(jobs)
	return s
}

// Update swaps the job set.
func (s *Scheduler) Update(jobs []Job) {
	next := make([]Job, len(jobs))
	copy(next, jobs)
	s.mu.Lock()
	s.jobs = next
	s.mu.Unlock()
}

// Jobs returns the current job count.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run ticks on minute boundaries until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "reminders", s.Jobs())
	for {
		next := s.now().Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return
		case <-timer.C:
			s.tick(next)
		}
	}
}

// tick dispatches every job whose schedule is due at now.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	jobs := s.jobs
	s.mu.Unlock()

	for _, job := range jobs {
		due, err := s.gron.IsDue(job.Schedule, now)
		if err != nil {
			slog.Warn("reminder schedule check failed", "schedule", job.Schedule, "error", err)
			continue
		}
		if !due {
			continue
		}
		slog.Info("reminder fired",
			"command", job.Command,
			"channel", job.Channel,
			"user_id", job.UserID)
		s.dispatcher.DispatchAsync(context.Background(), job.envelope())
	}
}
