package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeLog guarda o registro em memória pra testar o limiter sem banco
type fakeLog struct {
	entries []Entry
	fail    bool
}

func (f *fakeLog) countable(since time.Time) []Entry {
	var out []Entry
	for _, e := range f.entries {
		if e.Success && !e.FromCache && !e.CalledAt.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeLog) CountInWindow(ctx context.Context, service string, since time.Time) (int, error) {
	if f.fail {
		return 0, errors.New("storage down")
	}
	return len(f.countable(since)), nil
}

func (f *fakeLog) OldestInWindow(ctx context.Context, service string, since time.Time) (time.Time, bool, error) {
	in := f.countable(since)
	if len(in) == 0 {
		return time.Time{}, false, nil
	}
	oldest := in[0].CalledAt
	for _, e := range in[1:] {
		if e.CalledAt.Before(oldest) {
			oldest = e.CalledAt
		}
	}
	return oldest, true, nil
}

func (f *fakeLog) Append(ctx context.Context, service string, e Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLog) PruneBefore(ctx context.Context, service string, cutoff time.Time) error {
	var keep []Entry
	for _, e := range f.entries {
		if !e.CalledAt.Before(cutoff) {
			keep = append(keep, e)
		}
	}
	f.entries = keep
	return nil
}

func (f *fakeLog) Tail(ctx context.Context, service string, limit int) ([]Entry, error) {
	if len(f.entries) > limit {
		return f.entries[len(f.entries)-limit:], nil
	}
	return f.entries, nil
}

func limiterAt(store Log, ceiling int, now time.Time) *Limiter {
	l := New(zap.NewNop(), store, "scoreboard-provider", ceiling)
	l.Now = func() time.Time { return now }
	return l
}

func TestCanCallUntilCeiling(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{}
	now := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)
	l := limiterAt(store, 3, now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.CanCall(ctx))
		l.Record(ctx, "/v1/scoreboard", true, false)
	}
	assert.False(t, l.CanCall(ctx))
}

func TestWindowSlides(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{}
	t0 := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)

	l := limiterAt(store, 2, t0)
	l.Record(ctx, "/v1/scoreboard", true, false)
	l.Record(ctx, "/v1/scoreboard", true, false)
	assert.False(t, l.CanCall(ctx))

	// a chamada mais antiga envelhece pra fora da janela de 1h
	l.Now = func() time.Time { return t0.Add(Window + time.Minute) }
	assert.True(t, l.CanCall(ctx))
}

func TestCachedAndFailedCallsDontSpendBudget(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{}
	now := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)
	l := limiterAt(store, 1, now)

	l.Record(ctx, "/v1/scoreboard", true, true)   // cache hit
	l.Record(ctx, "/v1/scoreboard", false, false) // falha do provider
	assert.True(t, l.CanCall(ctx))

	l.Record(ctx, "/v1/scoreboard", true, false)
	assert.False(t, l.CanCall(ctx))
}

func TestFailsClosedOnStorageError(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{fail: true}
	l := limiterAt(store, 10, time.Now())
	assert.False(t, l.CanCall(ctx))
}

func TestStatusReportsResetFromOldestCall(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{}
	t0 := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)

	l := limiterAt(store, 5, t0)
	l.Record(ctx, "/v1/scoreboard", true, false)
	l.Now = func() time.Time { return t0.Add(10 * time.Minute) }
	l.Record(ctx, "/v1/scoreboard", true, false)

	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Limit)
	assert.Equal(t, 2, st.Used)
	assert.Equal(t, 3, st.Remaining)
	require.NotNil(t, st.ResetAt)
	assert.Equal(t, t0.Add(Window), *st.ResetAt)
	assert.Len(t, st.Recent, 2)
}

func TestRecordPrunesPastRetention(t *testing.T) {
	ctx := context.Background()
	store := &fakeLog{}
	t0 := time.Date(2025, 9, 7, 18, 0, 0, 0, time.UTC)

	l := limiterAt(store, 5, t0)
	l.Record(ctx, "/v1/scoreboard", true, false)

	l.Now = func() time.Time { return t0.Add(Retention + time.Hour) }
	l.Record(ctx, "/v1/scoreboard", true, false)
	assert.Len(t, store.entries, 1) // a linha antiga foi podada
}
