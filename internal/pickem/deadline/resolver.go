package deadline

import (
	"sort"
	"time"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

// Kind é a política de deadline configurada no pool
type Kind string

const (
	KindWeekFirstKickoff Kind = "week_first_kickoff" // semana inteira trava no primeiro kickoff
	KindWeekCustomOffset Kind = "week_custom_offset" // primeiro kickoff menos offset em minutos
	KindPerEvent         Kind = "per_event"          // cada jogo trava no próprio kickoff
)

// ParseKind normaliza a política; valor desconhecido cai no fallback
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindWeekFirstKickoff, KindWeekCustomOffset, KindPerEvent:
		return Kind(s)
	default:
		return KindWeekFirstKickoff
	}
}

// Resolution é o resultado do resolver pra um pool/semana.
// Resolved=false significa "não dá pra editar", nunca "sem deadline":
// pool sem política ou semana sem jogos fecha a edição por segurança.
type Resolution struct {
	Resolved  bool
	Kind      Kind
	WeekLock  time.Time            // instante de travamento da semana inteira
	GameLocks map[string]time.Time // por jogo (apenas per_event)
}

// Resolve é puro e determinístico: mapeia política + jogos da semana nos
// instantes de travamento. Offsets não são honrados em per_event.
func Resolve(settings *repo.DeadlineSettings, games []repo.Game) Resolution {
	if settings == nil || len(games) == 0 {
		return Resolution{}
	}

	first := games[0].Kickoff
	last := games[0].Kickoff
	for _, g := range games[1:] {
		if g.Kickoff.Before(first) {
			first = g.Kickoff
		}
		if g.Kickoff.After(last) {
			last = g.Kickoff
		}
	}

	kind := ParseKind(settings.Kind)
	switch kind {
	case KindWeekCustomOffset:
		return Resolution{
			Resolved: true,
			Kind:     kind,
			WeekLock: first.Add(-time.Duration(settings.OffsetMinutes) * time.Minute),
		}
	case KindPerEvent:
		locks := make(map[string]time.Time, len(games))
		for _, g := range games {
			locks[g.ID] = g.Kickoff
		}
		// a semana segue "aberta" até o último jogo começar,
		// mesmo com jogos individuais já travados
		return Resolution{Resolved: true, Kind: kind, WeekLock: last, GameLocks: locks}
	default:
		return Resolution{Resolved: true, Kind: kind, WeekLock: first}
	}
}

// CanEditWeek responde se a semana inteira ainda aceita edição.
// Política não resolvida fecha a edição, não é erro.
func (r Resolution) CanEditWeek(now time.Time) bool {
	if !r.Resolved {
		return false
	}
	return now.Before(r.WeekLock)
}

// CanEditGame responde se um jogo específico ainda aceita edição
func (r Resolution) CanEditGame(now time.Time, gameID string) bool {
	if !r.Resolved {
		return false
	}
	if r.Kind != KindPerEvent {
		return now.Before(r.WeekLock)
	}
	lock, ok := r.GameLocks[gameID]
	if !ok {
		return false // jogo desconhecido fecha por segurança
	}
	return now.Before(lock)
}

// DueGames lista os jogos cujo instante de travamento já passou
// (apenas per_event; ordenado pra saída determinística)
func (r Resolution) DueGames(now time.Time) []string {
	if !r.Resolved || r.Kind != KindPerEvent {
		return nil
	}
	var due []string
	for id, lock := range r.GameLocks {
		if !now.Before(lock) {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	return due
}
