package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

var t0 = time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

// três jogos em T+1h, T+2h e T+3h
func weekGames() []repo.Game {
	return []repo.Game{
		{ID: "g1", Season: 2025, Week: 1, Kickoff: t0.Add(1 * time.Hour)},
		{ID: "g2", Season: 2025, Week: 1, Kickoff: t0.Add(2 * time.Hour)},
		{ID: "g3", Season: 2025, Week: 1, Kickoff: t0.Add(3 * time.Hour)},
	}
}

func TestResolveWeekFirstKickoff(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "week_first_kickoff"}
	res := Resolve(settings, weekGames())

	require.True(t, res.Resolved)
	assert.Equal(t, t0.Add(1*time.Hour), res.WeekLock)

	// em T+0 tudo editável; em T+1h+1s a semana inteira fecha,
	// independente do kickoff individual de cada jogo
	assert.True(t, res.CanEditWeek(t0))
	assert.True(t, res.CanEditGame(t0, "g3"))
	after := t0.Add(1*time.Hour + time.Second)
	assert.False(t, res.CanEditWeek(after))
	assert.False(t, res.CanEditGame(after, "g2"))
	assert.False(t, res.CanEditGame(after, "g3"))
}

func TestResolveWeekCustomOffset(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "week_custom_offset", OffsetMinutes: 90}
	res := Resolve(settings, weekGames())

	require.True(t, res.Resolved)
	assert.Equal(t, t0.Add(-30*time.Minute), res.WeekLock) // T+1h - 90min
	assert.False(t, res.CanEditWeek(t0))
}

func TestResolvePerEvent(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "per_event", OffsetMinutes: 60}
	res := Resolve(settings, weekGames())
	require.True(t, res.Resolved)

	// offset não é honrado em per_event: cada jogo trava no próprio kickoff
	after := t0.Add(1*time.Hour + time.Second)
	assert.False(t, res.CanEditGame(after, "g1"))
	assert.True(t, res.CanEditGame(after, "g2"))
	assert.True(t, res.CanEditGame(after, "g3"))

	// semana segue aberta até o último jogo começar
	assert.True(t, res.CanEditWeek(after))
	assert.True(t, res.CanEditWeek(t0.Add(3*time.Hour).Add(-time.Second)))
	assert.False(t, res.CanEditWeek(t0.Add(3*time.Hour)))

	assert.Equal(t, []string{"g1"}, res.DueGames(after))
	assert.Equal(t, []string{"g1", "g2", "g3"}, res.DueGames(t0.Add(4*time.Hour)))
}

func TestResolveUnknownKindFallsBack(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "whatever"}
	res := Resolve(settings, weekGames())
	require.True(t, res.Resolved)
	assert.Equal(t, KindWeekFirstKickoff, res.Kind)
	assert.Equal(t, t0.Add(1*time.Hour), res.WeekLock)
}

func TestResolveFailsClosed(t *testing.T) {
	// sem política configurada: edição fecha, não vira erro
	res := Resolve(nil, weekGames())
	assert.False(t, res.Resolved)
	assert.False(t, res.CanEditWeek(t0))
	assert.False(t, res.CanEditGame(t0, "g1"))

	// semana sem jogos: mesma coisa
	res = Resolve(&repo.DeadlineSettings{PoolID: "p1", Kind: "per_event"}, nil)
	assert.False(t, res.Resolved)
	assert.False(t, res.CanEditWeek(t0))
}

func TestResolveIsDeterministic(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "per_event"}
	a := Resolve(settings, weekGames())
	b := Resolve(settings, weekGames())
	assert.Equal(t, a, b)
}

func TestCanEditGameUnknownGame(t *testing.T) {
	settings := &repo.DeadlineSettings{PoolID: "p1", Kind: "per_event"}
	res := Resolve(settings, weekGames())
	assert.False(t, res.CanEditGame(t0, "nope"))
}
