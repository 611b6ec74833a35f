package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/livesync/client"
	"github.com/radieske/pickem-pools-poc/internal/pickem/picks"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	"github.com/radieske/pickem-pools-poc/pkg/contracts/events"
)

type fakeGames struct {
	mu       sync.Mutex
	live     bool
	liveSeq  []bool // respostas de HasLiveGames em ordem; vazio cai em live
	next     *repo.Game
	season   int
	week     int
	prevLive bool
	err      error
}

func (f *fakeGames) HasLiveGames(ctx context.Context, now time.Time, past, future time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if len(f.liveSeq) > 0 {
		v := f.liveSeq[0]
		f.liveSeq = f.liveSeq[1:]
		return v, nil
	}
	return f.live, nil
}

func (f *fakeGames) NextKickoff(ctx context.Context, after time.Time) (*repo.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next, nil
}

func (f *fakeGames) LiveWeek(ctx context.Context, now time.Time) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.season, f.week, nil
}

func (f *fakeGames) WeekStillLive(ctx context.Context, season, week int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prevLive, nil
}

type syncCall struct{ season, week int }

type fakeSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	res   client.SyncResult
	err   error
	block chan struct{} // se setado, Sync bloqueia até fechar
}

func (f *fakeSyncer) Sync(ctx context.Context, season, week int) (client.SyncResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{season, week})
	return f.res, f.err
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecon struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRecon) Reconcile(ctx context.Context) (picks.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return picks.Report{}, nil
}

func (f *fakeRecon) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePub struct {
	mu     sync.Mutex
	events []events.ResultsUpdated
}

func (f *fakePub) PublishResultsUpdated(ctx context.Context, e events.ResultsUpdated) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 20 * time.Millisecond
	cfg.TickTimeout = time.Second
	cfg.Cooldown = 10 * time.Millisecond
	cfg.SafetyInterval = time.Hour
	return cfg
}

func newTestScheduler(games *fakeGames, syncer *fakeSyncer, recon *fakeRecon, publ Publisher) *Scheduler {
	return New(zap.NewNop(), testConfig(), games, syncer, recon, publ)
}

func TestEvaluateArmsMonitoringBeforeKickoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	games := &fakeGames{
		next: &repo.Game{ID: "g1", Kickoff: time.Now().UTC().Add(40 * time.Minute)},
	}
	s := newTestScheduler(games, &fakeSyncer{}, &fakeRecon{}, nil)
	s.Start(ctx)
	defer s.Stop()

	assert.Equal(t, StateMonitoring, s.State())
}

func TestEvaluateGoesIdleWithoutUpcomingGames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestScheduler(&fakeGames{}, &fakeSyncer{}, &fakeRecon{}, nil)
	s.Start(ctx)
	defer s.Stop()

	assert.Equal(t, StateIdle, s.State())
}

func TestActiveTicksRepeatedly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	games := &fakeGames{live: true, season: 2025, week: 1}
	syncer := &fakeSyncer{}
	recon := &fakeRecon{}
	s := newTestScheduler(games, syncer, recon, nil)
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool { return syncer.callCount() >= 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, StateActive, s.State())
	assert.GreaterOrEqual(t, recon.callCount(), 3)
}

func TestDeactivatesWhenWindowCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// primeira avaliação não vê jogo vivo; a segunda (manual) vê; o
	// pós-tick não vê mais e a máquina desativa
	games := &fakeGames{
		liveSeq: []bool{false, true, false},
		next:    &repo.Game{ID: "g1", Kickoff: time.Now().UTC().Add(40 * time.Minute)},
		season:  2025,
		week:    1,
	}
	syncer := &fakeSyncer{}
	s := newTestScheduler(games, syncer, &fakeRecon{}, nil)
	s.Start(ctx)
	defer s.Stop()
	require.Equal(t, StateMonitoring, s.State())

	games.mu.Lock()
	games.next = nil
	games.mu.Unlock()

	s.Evaluate(ctx)
	require.Eventually(t, func() bool { return s.State() == StateIdle },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, syncer.callCount())
}

func TestTickSkipsWhenPreviousStillRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	games := &fakeGames{live: true, season: 2025, week: 1}
	syncer := &fakeSyncer{block: make(chan struct{})}
	s := newTestScheduler(games, syncer, &fakeRecon{}, nil)

	var skips int
	var mu sync.Mutex
	s.OnSkip = func() { mu.Lock(); skips++; mu.Unlock() }

	go s.tick(ctx)
	require.Eventually(t, func() bool { return s.inFlight.Load() },
		time.Second, time.Millisecond)

	s.tick(ctx) // tick anterior em voo: deve pular inteiro
	mu.Lock()
	assert.Equal(t, 1, skips)
	mu.Unlock()

	close(syncer.block)
	require.Eventually(t, func() bool { return syncer.callCount() == 1 },
		time.Second, time.Millisecond)
}

func TestTickPrefersUnfinishedPreviousWeek(t *testing.T) {
	games := &fakeGames{live: true, season: 2025, week: 3, prevLive: true}
	syncer := &fakeSyncer{}
	s := newTestScheduler(games, syncer, &fakeRecon{}, nil)

	s.tick(context.Background())

	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, syncCall{2025, 2}, syncer.calls[0])
}

func TestBudgetExhaustedTickIsNotAnError(t *testing.T) {
	games := &fakeGames{live: true, season: 2025, week: 1}
	syncer := &fakeSyncer{err: client.ErrBudgetExhausted}
	recon := &fakeRecon{}
	s := newTestScheduler(games, syncer, recon, nil)

	var stages []string
	s.OnError = func(stage string) { stages = append(stages, stage) }

	s.tick(context.Background())

	assert.Empty(t, stages)
	// reconciliação roda mesmo sem orçamento de sync
	assert.Equal(t, 1, recon.callCount())
}

func TestTickPublishesResultsUpdated(t *testing.T) {
	games := &fakeGames{live: true, season: 2025, week: 1}
	syncer := &fakeSyncer{res: client.SyncResult{Processed: 3, Updated: 2, UpdatedIDs: []string{"g1", "g2"}}}
	pub := &fakePub{}
	s := newTestScheduler(games, syncer, &fakeRecon{}, pub)

	s.tick(context.Background())

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, 2025, evt.Season)
	assert.Equal(t, 1, evt.Week)
	assert.Equal(t, 2, evt.Updated)
	assert.Equal(t, []string{"g1", "g2"}, evt.GameIDs)
	assert.Equal(t, "live-sync-worker", evt.Source)
}
