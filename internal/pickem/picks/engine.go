package picks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/pickem/deadline"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	"github.com/radieske/pickem-pools-poc/pkg/contracts/events"
)

// Store é o recorte de persistência que o motor de travamento usa
type Store interface {
	UnlockedPickGroups(ctx context.Context) ([]repo.PickGroup, error)
	GamesForWeek(ctx context.Context, season, week int) ([]repo.Game, error)
	DeadlineSettings(ctx context.Context, poolID string) (*repo.DeadlineSettings, error)
	PoolOfEntry(ctx context.Context, entryID string) (string, error)
	LockWeek(ctx context.Context, poolID string, season, week int, now time.Time) (int64, error)
	LockGames(ctx context.Context, poolID string, season, week int, gameIDs []string, now time.Time) (int64, error)
	ScoreCompleted(ctx context.Context, season, week int) (int64, error)
	ReplacePicks(ctx context.Context, entryID string, season, week int, lockedNow []string, picks []repo.Prediction) (repo.ReplaceResult, error)
}

// Publisher publica eventos de travamento pra consumidores downstream
type Publisher interface {
	PublishPicksLocked(ctx context.Context, e events.PicksLocked) error
}

// Engine aplica as políticas de deadline sobre os palpites armazenados:
// passe de reconciliação idempotente + protocolo transacional de save
type Engine struct {
	Log   *zap.Logger
	Store Store
	Publ  Publisher        // opcional
	Now   func() time.Time // injetável pra teste

	OnLocked     func(int) // métricas
	OnScored     func(int) // métricas
	OnGroupError func()    // métricas
}

func NewEngine(log *zap.Logger, store Store, publ Publisher) *Engine {
	return &Engine{Log: log, Store: store, Publ: publ, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Report resume um passe de reconciliação
type Report struct {
	RunID   string `json:"run_id"`
	Groups  int    `json:"groups"`
	Locked  int64  `json:"locked"`
	Scored  int64  `json:"scored"`
	Skipped int    `json:"skipped"`
}

// Reconcile varre todos os conjuntos pool/semana com palpites destravados e
// trava os que passaram do deadline. Idempotente: repetir sem tempo decorrido
// não muda nada. Falha de um grupo pula o grupo e segue o batch.
func (e *Engine) Reconcile(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString()}

	groups, err := e.Store.UnlockedPickGroups(ctx)
	if err != nil {
		return rep, err
	}
	rep.Groups = len(groups)

	for _, g := range groups {
		locked, scored, err := e.reconcileGroup(ctx, rep.RunID, g)
		if err != nil {
			e.Log.Warn("reconcile group failed",
				zap.String("pool", g.PoolID),
				zap.Int("season", g.Season),
				zap.Int("week", g.Week),
				zap.Error(err),
			)
			if e.OnGroupError != nil {
				e.OnGroupError()
			}
			rep.Skipped++
			continue
		}
		rep.Locked += locked
		rep.Scored += scored
	}

	return rep, nil
}

// reconcileGroup resolve a política do pool e trava o que venceu; depois
// pontua palpites travados de jogos já completados
func (e *Engine) reconcileGroup(ctx context.Context, runID string, g repo.PickGroup) (locked, scored int64, err error) {
	settings, err := e.Store.DeadlineSettings(ctx, g.PoolID)
	if err != nil {
		return 0, 0, err
	}
	games, err := e.Store.GamesForWeek(ctx, g.Season, g.Week)
	if err != nil {
		return 0, 0, err
	}

	res := deadline.Resolve(settings, games)
	now := e.now()

	var due []string
	if res.Resolved {
		switch res.Kind {
		case deadline.KindPerEvent:
			due = res.DueGames(now)
			if len(due) > 0 {
				locked, err = e.Store.LockGames(ctx, g.PoolID, g.Season, g.Week, due, now)
			}
		default:
			if !now.Before(res.WeekLock) {
				locked, err = e.Store.LockWeek(ctx, g.PoolID, g.Season, g.Week, now)
			}
		}
		if err != nil {
			return 0, 0, err
		}
	}
	// política não resolvida: nada pra travar aqui; a edição já fecha
	// no resolver (fail closed), então só segue pra pontuação

	scored, err = e.Store.ScoreCompleted(ctx, g.Season, g.Week)
	if err != nil {
		return locked, 0, err
	}

	if locked > 0 {
		if e.OnLocked != nil {
			e.OnLocked(int(locked))
		}
		if e.Publ != nil {
			evt := events.PicksLocked{
				RunID:    runID,
				PoolID:   g.PoolID,
				Season:   g.Season,
				Week:     g.Week,
				Locked:   int(locked),
				GameIDs:  due,
				LockedAt: now,
			}
			if perr := e.Publ.PublishPicksLocked(ctx, evt); perr != nil {
				e.Log.Warn("publish picks_locked failed", zap.Error(perr))
			}
		}
	}
	if scored > 0 && e.OnScored != nil {
		e.OnScored(int(scored))
	}

	return locked, scored, nil
}

// SaveResult é a resposta do protocolo de save de palpites
type SaveResult struct {
	Saved      int         `json:"saved"`
	Dropped    []string    `json:"dropped,omitempty"` // jogos já travados no envio
	Violations []Violation `json:"violations,omitempty"`
	WeekLocked bool        `json:"week_locked,omitempty"`
}

// SaveWeek executa o envio de palpites de uma entry pra uma semana:
// valida, roda a reconciliação do grupo, e substitui transacionalmente o
// conjunto destravado pelo envio. Violações de validação voltam como dado
// e nunca tocam o storage.
func (e *Engine) SaveWeek(ctx context.Context, entryID string, season, week int, mode Mode, input []PickInput) (SaveResult, error) {
	var out SaveResult

	games, err := e.Store.GamesForWeek(ctx, season, week)
	if err != nil {
		return out, err
	}

	if v := Validate(games, input, mode); len(v) > 0 {
		out.Violations = v
		return out, nil
	}

	poolID, err := e.Store.PoolOfEntry(ctx, entryID)
	if err != nil {
		return out, err
	}
	settings, err := e.Store.DeadlineSettings(ctx, poolID)
	if err != nil {
		return out, err
	}

	// passe de reconciliação imediatamente antes do save; se falhar não
	// bloqueia o envio, a trava in-tx do ReplacePicks cobre a corrida
	group := repo.PickGroup{PoolID: poolID, Season: season, Week: week}
	if _, _, rerr := e.reconcileGroup(ctx, uuid.NewString(), group); rerr != nil {
		e.Log.Warn("pre-save reconcile failed", zap.String("entry", entryID), zap.Error(rerr))
	}

	res := deadline.Resolve(settings, games)
	now := e.now()

	// semana fechada (ou política não resolvida) nunca toca o storage
	if !res.CanEditWeek(now) {
		out.WeekLocked = true
		return out, nil
	}

	preds := make([]repo.Prediction, 0, len(input))
	for _, p := range input {
		preds = append(preds, repo.Prediction{
			EntryID:    entryID,
			Season:     season,
			Week:       week,
			GameID:     p.GameID,
			PickedTeam: p.PickedTeam,
			Weight:     p.Weight,
		})
	}

	rr, err := e.Store.ReplacePicks(ctx, entryID, season, week, res.DueGames(now), preds)
	if err != nil {
		return out, err
	}
	out.Saved = rr.Saved
	out.Dropped = rr.Dropped
	return out, nil
}
