package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"marks-access/internal/config"
	"marks-access/internal/service"
)

// taskTimeout bounds a single run of a scheduled task
const taskTimeout = 10 * time.Minute

// DeadlinePoller runs the deadline sweep
type DeadlinePoller interface {
	Poll(ctx context.Context) (*service.PollSummary, error)
}

// DigestSender mails the admin the pending edit-request digest
type DigestSender interface {
	SendPendingDigest(ctx context.Context) (int, error)
}

// Scheduler handles periodic tasks
type Scheduler struct {
	deadlines DeadlinePoller
	digest    DigestSender
	config    *config.SchedulerConfig
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(deadlines DeadlinePoller, digest DigestSender, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		deadlines: deadlines,
		digest:    digest,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

// Start starts all enabled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler",
		"deadline_poll_enabled", s.config.EnableDeadlinePoll,
		"pending_digest_enabled", s.config.EnablePendingDigest)

	if s.config.EnableDeadlinePoll {
		if err := s.startCronTask(s.config.DeadlinePollCron, "deadline_poll", s.pollDeadlines); err != nil {
			slog.Error("Failed to start deadline poll", "error", err)
		}
	}

	if s.config.EnablePendingDigest {
		if err := s.startCronTask(s.config.PendingDigestCron, "pending_digest", s.sendPendingDigest); err != nil {
			slog.Error("Failed to start pending digest", "error", err)
		}
	}

	slog.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) startCronTask(cronExpr, taskName string, task func(context.Context)) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(sched, taskName, task)
	}()
	return nil
}

// run executes task at every occurrence of sched until Stop
func (s *Scheduler) run(sched schedule, taskName string, task func(context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopChan
		cancel()
	}()

	if sched.kind == kindInterval {
		// interval tasks run once at startup
		s.execute(ctx, taskName, task)
	}

	for {
		now := time.Now()
		next := sched.next(now)
		slog.Info("Next task run scheduled", "task", taskName, "next_run", next.Format("2006-01-02 15:04:05"))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			s.execute(ctx, taskName, task)
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, taskName string, task func(context.Context)) {
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	start := time.Now()
	slog.Info("Running scheduled task", "task", taskName)
	task(ctx)
	slog.Info("Scheduled task finished", "task", taskName, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) pollDeadlines(ctx context.Context) {
	summary, err := s.deadlines.Poll(ctx)
	if err != nil {
		slog.Error("Deadline poll failed", "error", err)
		return
	}
	slog.Info("Deadline poll completed",
		"processed", summary.ProcessedCount,
		"skipped", summary.SkippedCount,
		"reminders_sent", summary.RemindersSent,
		"errors", len(summary.Errors))
}

func (s *Scheduler) sendPendingDigest(ctx context.Context) {
	n, err := s.digest.SendPendingDigest(ctx)
	if err != nil {
		slog.Error("Pending digest failed", "error", err)
		return
	}
	slog.Info("Pending digest completed", "pending_requests", n)
}

type scheduleKind int

const (
	kindInterval scheduleKind = iota
	kindHourlyInterval
	kindDaily
	kindWeekly
)

// schedule is a parsed cron expression
type schedule struct {
	kind         scheduleKind
	interval     time.Duration
	hourInterval int
	hour         int
	minute       int
	weekday      time.Weekday
}

// parseCron supports a subset of the five-field cron format
// "minute hour day month weekday": "*/5 * * * *" every 5 minutes,
// "0 */2 * * *" every 2 hours on the hour, "0 9 * * *" daily at 9,
// "0 9 * * 1" Mondays at 9. Day and month fields are ignored.
func parseCron(expr string) (schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return schedule{}, fmt.Errorf("invalid cron expression: %s (expected 5 fields)", expr)
	}

	if strings.HasPrefix(parts[0], "*/") {
		interval, err := strconv.Atoi(parts[0][2:])
		if err != nil || interval < 1 || interval > 59 {
			return schedule{}, fmt.Errorf("invalid minute interval in cron: %s", parts[0])
		}
		return schedule{kind: kindInterval, interval: time.Duration(interval) * time.Minute}, nil
	}

	minute, err := strconv.Atoi(parts[0])
	if err != nil || minute < 0 || minute > 59 {
		return schedule{}, fmt.Errorf("invalid minute in cron: %s", parts[0])
	}

	if strings.HasPrefix(parts[1], "*/") {
		interval, err := strconv.Atoi(parts[1][2:])
		if err != nil || interval < 1 || interval > 23 {
			return schedule{}, fmt.Errorf("invalid hour interval in cron: %s", parts[1])
		}
		return schedule{kind: kindHourlyInterval, hourInterval: interval, minute: minute}, nil
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return schedule{}, fmt.Errorf("invalid hour in cron: %s", parts[1])
	}

	if parts[4] == "*" {
		return schedule{kind: kindDaily, hour: hour, minute: minute}, nil
	}

	weekday, err := strconv.Atoi(parts[4])
	if err != nil || weekday < 0 || weekday > 6 {
		return schedule{}, fmt.Errorf("invalid weekday in cron: %s (0-6, 0=Sunday)", parts[4])
	}
	return schedule{kind: kindWeekly, weekday: time.Weekday(weekday), hour: hour, minute: minute}, nil
}

// next returns the first run strictly after from
func (sc schedule) next(from time.Time) time.Time {
	switch sc.kind {
	case kindInterval:
		return from.Add(sc.interval)

	case kindHourlyInterval:
		next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), sc.minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
		for next.Hour()%sc.hourInterval != 0 {
			next = next.Add(time.Hour)
		}
		return next

	case kindWeekly:
		next := time.Date(from.Year(), from.Month(), from.Day(), sc.hour, sc.minute, 0, 0, from.Location())
		daysUntil := int(sc.weekday - from.Weekday())
		if daysUntil < 0 {
			daysUntil += 7
		}
		next = next.AddDate(0, 0, daysUntil)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		next := time.Date(from.Year(), from.Month(), from.Day(), sc.hour, sc.minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}
