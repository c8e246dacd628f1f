package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"marks-access/internal/config"
	"marks-access/internal/service"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		kind    scheduleKind
		wantErr bool
	}{
		{expr: "*/5 * * * *", kind: kindInterval},
		{expr: "30 */2 * * *", kind: kindHourlyInterval},
		{expr: "0 9 * * *", kind: kindDaily},
		{expr: "0 8 * * 1", kind: kindWeekly},
		{expr: "0 9 * *", wantErr: true},
		{expr: "61 9 * * *", wantErr: true},
		{expr: "0 24 * * *", wantErr: true},
		{expr: "0 9 * * 7", wantErr: true},
		{expr: "*/0 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected an error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCron failed: %v", err)
			}
			if sched.kind != tt.kind {
				t.Errorf("Expected kind %d, got %d", tt.kind, sched.kind)
			}
		})
	}
}

func TestScheduleNext(t *testing.T) {
	// Tuesday
	from := time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{expr: "*/5 * * * *", want: from.Add(5 * time.Minute)},
		{expr: "0 9 * * *", want: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{expr: "30 10 * * *", want: time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)},
		{expr: "0 */4 * * *", want: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		{expr: "0 8 * * 1", want: time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)},
		{expr: "0 12 * * 2", want: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		{expr: "15 10 * * *", want: time.Date(2026, 3, 11, 10, 15, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			if err != nil {
				t.Fatalf("parseCron failed: %v", err)
			}
			if got := sched.next(from); !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

type countingPoller struct {
	calls atomic.Int32
}

func (p *countingPoller) Poll(_ context.Context) (*service.PollSummary, error) {
	p.calls.Add(1)
	return &service.PollSummary{}, nil
}

type countingDigest struct {
	calls atomic.Int32
}

func (d *countingDigest) SendPendingDigest(_ context.Context) (int, error) {
	d.calls.Add(1)
	return 0, nil
}

func TestIntervalTaskRunsAtStartupAndStops(t *testing.T) {
	poller := &countingPoller{}
	digest := &countingDigest{}
	s := NewScheduler(poller, digest, &config.SchedulerConfig{
		DeadlinePollCron:    "*/30 * * * *",
		PendingDigestCron:   "0 8 * * *",
		EnableDeadlinePoll:  true,
		EnablePendingDigest: false,
	})

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for poller.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()

	if poller.calls.Load() != 1 {
		t.Errorf("Expected one startup poll, got %d", poller.calls.Load())
	}
	if digest.calls.Load() != 0 {
		t.Errorf("Disabled digest must not run, got %d", digest.calls.Load())
	}
}
