package schedulerengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.com/savesync.net/internal/adapter/logging"
	"gitlab.com/savesync.net/internal/config"
)

type recorder struct {
	mu     sync.Mutex
	calls  []time.Duration
	err    error
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 16)}
}

func (r *recorder) record(olderThan time.Duration) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, olderThan)
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
	return 1, r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type expirer struct{ *recorder }

func (e expirer) ExpireStale(_ context.Context, olderThan time.Duration) (int, error) {
	return e.record(olderThan)
}

type purger struct{ *recorder }

func (p purger) Purge(_ context.Context, olderThan time.Duration) (int, error) {
	return p.record(olderThan)
}

func TestSweepUsesConfiguredThresholds(t *testing.T) {
	exp, pur := newRecorder(), newRecorder()
	cfg := &config.SweepConfig{StaleAfter: time.Hour, PurgeAfter: 24 * time.Hour}
	engine := NewSweepEngine(cfg, expirer{exp}, purger{pur}, logging.NewNopLogger())

	engine.Sweep(context.Background())

	assert.Equal(t, []time.Duration{time.Hour}, exp.calls)
	assert.Equal(t, []time.Duration{24 * time.Hour}, pur.calls)
}

func TestSweepSkipsPurgeWhenDisabled(t *testing.T) {
	exp, pur := newRecorder(), newRecorder()
	exp.err = errors.New("redis down")
	cfg := &config.SweepConfig{StaleAfter: time.Hour}
	engine := NewSweepEngine(cfg, expirer{exp}, purger{pur}, logging.NewNopLogger())

	engine.Sweep(context.Background())

	assert.Equal(t, 1, exp.count())
	assert.Equal(t, 0, pur.count())
}

func TestStartWithZeroIntervalStaysIdle(t *testing.T) {
	exp, pur := newRecorder(), newRecorder()
	engine := NewSweepEngine(&config.SweepConfig{StaleAfter: time.Hour}, expirer{exp}, purger{pur}, logging.NewNopLogger())

	assert.False(t, engine.Start(context.Background()))
	engine.Stop()
	assert.Equal(t, 0, exp.count())
}

func TestStartSweepsOnEveryTick(t *testing.T) {
	exp, pur := newRecorder(), newRecorder()
	cfg := &config.SweepConfig{Interval: 5 * time.Millisecond, StaleAfter: time.Minute}
	engine := NewSweepEngine(cfg, expirer{exp}, purger{pur}, logging.NewNopLogger())

	assert.True(t, engine.Start(context.Background()))
	for i := 0; i < 2; i++ {
		select {
		case <-exp.signal:
		case <-time.After(2 * time.Second):
			t.Fatal("sweep did not run")
		}
	}
	engine.Stop()

	after := exp.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, exp.count())
}
