package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/marketsync/internal/calendar"
	"github.com/rickgao/marketsync/internal/model"
)

// mockService counts calls and returns canned views.
type mockService struct {
	kind       model.CalendarKind
	reads      atomic.Int32
	refreshes  atomic.Int32
	forced     atomic.Int32
	refreshErr error
}

func (m *mockService) Kind() model.CalendarKind { return m.kind }

func (m *mockService) Read(ctx context.Context) (calendar.View, error) {
	m.reads.Add(1)
	return calendar.View{Kind: m.kind, State: "fresh"}, nil
}

func (m *mockService) Refresh(ctx context.Context, force bool) (calendar.View, error) {
	m.refreshes.Add(1)
	if force {
		m.forced.Add(1)
	}
	if m.refreshErr != nil {
		return calendar.View{}, m.refreshErr
	}
	return calendar.View{Kind: m.kind, State: "fresh"}, nil
}

func TestPoller_RunOnce(t *testing.T) {
	ipo := &mockService{kind: model.KindIPO}
	earnings := &mockService{kind: model.KindEarnings, refreshErr: errors.New("calendar refresh failed")}

	p := New(DefaultConfig(), []Job{
		{Service: ipo, Schedule: "@every 4h"},
		{Service: earnings, Schedule: "@every 4h"},
	}, nil)

	p.RunOnce(context.Background())

	if got := ipo.refreshes.Load(); got != 1 {
		t.Errorf("ipo refreshes = %d, want 1", got)
	}
	if got := earnings.refreshes.Load(); got != 1 {
		t.Errorf("earnings refreshes = %d, want 1 (failure must not stop other calendars)", got)
	}
	if got := ipo.forced.Load() + earnings.forced.Load(); got != 0 {
		t.Errorf("forced refreshes = %d, want 0", got)
	}
}

func TestPoller_StartWarmsAndStops(t *testing.T) {
	ipo := &mockService{kind: model.KindIPO}
	earnings := &mockService{kind: model.KindEarnings}

	p := New(Config{Timeout: time.Second, Warm: true}, []Job{
		{Service: ipo, Schedule: "@every 4h"},
		{Service: earnings, Schedule: "0 */6 * * *"},
	}, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ipo.reads.Load() == 0 || earnings.reads.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("calendars not warmed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if got := ipo.refreshes.Load(); got != 0 {
		t.Errorf("refreshes = %d before the first tick, want 0", got)
	}
}

func TestPoller_ScheduledRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a one-second cron tick")
	}
	svc := &mockService{kind: model.KindIPO}

	p := New(Config{Timeout: time.Second}, []Job{{Service: svc, Schedule: "@every 1s"}}, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for svc.refreshes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no scheduled refresh within 3s")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := svc.reads.Load(); got != 0 {
		t.Errorf("reads = %d with warm-up disabled, want 0", got)
	}
}

func TestPoller_InvalidSchedule(t *testing.T) {
	svc := &mockService{kind: model.KindIPO}
	p := New(DefaultConfig(), []Job{{Service: svc, Schedule: "every now and then"}}, nil)

	if err := p.Start(context.Background()); err == nil {
		t.Error("Start with invalid schedule succeeded, want error")
	}
}
