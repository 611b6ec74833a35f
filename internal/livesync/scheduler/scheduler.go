package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/livesync/client"
	"github.com/radieske/pickem-pools-poc/internal/pickem/picks"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
	"github.com/radieske/pickem-pools-poc/pkg/contracts/events"
)

// State é o estado da máquina do scheduler. É sempre um cache de uma decisão
// re-derivável da tabela de jogos, nunca fonte de verdade.
type State int32

const (
	StateIdle State = iota
	StateMonitoring
	StateActive
)

func (s State) String() string {
	switch s {
	case StateMonitoring:
		return "monitoring"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// GameStore é o recorte de leitura da tabela de jogos que o scheduler usa
type GameStore interface {
	NextKickoff(ctx context.Context, after time.Time) (*repo.Game, error)
	HasLiveGames(ctx context.Context, now time.Time, past, future time.Duration) (bool, error)
	LiveWeek(ctx context.Context, now time.Time) (season, week int, err error)
	WeekStillLive(ctx context.Context, season, week int) (bool, error)
}

// Syncer é o client de sincronização de resultados
type Syncer interface {
	Sync(ctx context.Context, season, week int) (client.SyncResult, error)
}

// Reconciler é o motor de travamento de palpites
type Reconciler interface {
	Reconcile(ctx context.Context) (picks.Report, error)
}

// Publisher publica resultados atualizados pra consumidores downstream
type Publisher interface {
	PublishResultsUpdated(ctx context.Context, e events.ResultsUpdated) error
}

// Config são os parâmetros de tempo da máquina
type Config struct {
	TickInterval     time.Duration // intervalo do tick em Active
	TickTimeout      time.Duration // teto duro de um tick
	ActivationPast   time.Duration // janela de ativação pra trás do kickoff
	ActivationFuture time.Duration // janela de ativação pra frente
	MonitorLead      time.Duration // antecedência do arme em Monitoring
	Cooldown         time.Duration // espera antes de rearmar após Active
	SafetyInterval   time.Duration // malha de segurança de re-derivação
	RetryDelay       time.Duration // espera após falha ao derivar o próximo jogo
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     5 * time.Minute,
		TickTimeout:      4 * time.Minute,
		ActivationPast:   4 * time.Hour,
		ActivationFuture: 30 * time.Minute,
		MonitorLead:      30 * time.Minute,
		Cooldown:         30 * time.Second,
		SafetyInterval:   time.Hour,
		RetryDelay:       time.Hour,
	}
}

// Scheduler orquestra quando sincronizar resultados e rodar a reconciliação:
// se arma sozinho em volta dos kickoffs, sem operador
type Scheduler struct {
	Log    *zap.Logger
	Cfg    Config
	Games  GameStore
	Syncer Syncer
	Recon  Reconciler
	Publ   Publisher        // opcional
	Now    func() time.Time // injetável pra teste

	OnTick  func()       // métricas
	OnSkip  func()       // métricas: tick pulado por tick anterior em voo
	OnError func(string) // métricas por estágio

	mu         sync.Mutex
	state      State
	armTimer   *time.Timer
	ticker     *time.Ticker
	tickerDone chan struct{}
	ctx        context.Context

	inFlight atomic.Bool // limita a um sync em voo; tick extra é pulado
}

func New(log *zap.Logger, cfg Config, games GameStore, syncer Syncer, recon Reconciler, publ Publisher) *Scheduler {
	return &Scheduler{
		Log:    log,
		Cfg:    cfg,
		Games:  games,
		Syncer: syncer,
		Recon:  recon,
		Publ:   publ,
		Now:    time.Now,
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start deriva o estado inicial da tabela de jogos e liga a malha de
// segurança que re-deriva o estado a cada intervalo
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.Evaluate(ctx)
	go s.safetyLoop(ctx)
}

// Stop cancela timers e volta pra Idle
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopArmTimerLocked()
	s.stopTickerLocked()
	s.state = StateIdle
}

// State retorna o estado corrente da máquina
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate re-deriva o estado correto a partir da tabela de jogos.
// Roda no startup, na malha de segurança e no rearme pós-cooldown;
// o estado em memória nunca é tratado como autoritativo.
func (s *Scheduler) Evaluate(ctx context.Context) {
	now := s.now()

	live, err := s.Games.HasLiveGames(ctx, now, s.Cfg.ActivationPast, s.Cfg.ActivationFuture)
	if err != nil {
		s.Log.Warn("live window check failed, retrying later", zap.Error(err))
		s.errStage("evaluate")
		s.armAfter(s.Cfg.RetryDelay)
		return
	}
	if live {
		s.toActive(ctx)
		return
	}

	next, err := s.Games.NextKickoff(ctx, now)
	if err != nil {
		s.Log.Warn("next kickoff lookup failed, retrying later", zap.Error(err))
		s.errStage("next_game")
		s.armAfter(s.Cfg.RetryDelay)
		return
	}
	if next == nil {
		s.toIdle()
		return
	}

	wait := next.Kickoff.Add(-s.Cfg.MonitorLead).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	s.Log.Info("arming monitor timer",
		zap.String("game", next.ID),
		zap.Time("kickoff", next.Kickoff),
		zap.Duration("wait", wait),
	)
	s.armAfter(wait)
}

// armAfter substitui (não apenas rearma) o timer de monitoramento,
// evitando timers duplicados a cada re-avaliação
func (s *Scheduler) armAfter(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopArmTimerLocked()
	s.stopTickerLocked()
	s.state = StateMonitoring

	ctx := s.ctx
	s.armTimer = time.AfterFunc(d, func() {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		s.Evaluate(ctx)
	})
}

func (s *Scheduler) toIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopArmTimerLocked()
	s.stopTickerLocked()
	if s.state != StateIdle {
		s.Log.Info("no upcoming games, going idle")
	}
	s.state = StateIdle
}

// toActive liga o tick repetitivo e dispara um tick imediato
func (s *Scheduler) toActive(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateActive && s.ticker != nil {
		s.mu.Unlock()
		return // já ativo; nada a fazer
	}
	s.stopArmTimerLocked()
	s.stopTickerLocked()
	s.state = StateActive
	s.ticker = time.NewTicker(s.Cfg.TickInterval)
	done := make(chan struct{})
	s.tickerDone = done
	ticker := s.ticker
	s.mu.Unlock()

	s.Log.Info("scheduler active", zap.Duration("tick", s.Cfg.TickInterval))

	go func() {
		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// tick executa uma rodada: resolve a semana viva, sincroniza resultados
// (dentro do orçamento), roda a reconciliação e re-avalia se ainda há jogo.
// Qualquer falha é logada e o tick seguinte tenta de novo.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		// tick anterior ainda em voo: pula inteiro, sem fila
		s.Log.Info("previous tick still running, skipping")
		if s.OnSkip != nil {
			s.OnSkip()
		}
		return
	}
	defer s.inFlight.Store(false)

	if s.OnTick != nil {
		s.OnTick()
	}

	tctx, cancel := context.WithTimeout(ctx, s.Cfg.TickTimeout)
	defer cancel()

	season, week, err := s.liveWeek(tctx)
	if err != nil {
		s.Log.Warn("live week resolve failed", zap.Error(err))
		s.errStage("week")
		return
	}

	res, err := s.Syncer.Sync(tctx, season, week)
	switch {
	case errors.Is(err, client.ErrBudgetExhausted):
		s.Log.Info("sync budget exhausted, skipping sync this tick",
			zap.Int("season", season), zap.Int("week", week))
	case err != nil:
		s.Log.Warn("sync failed", zap.Int("week", week), zap.Error(err))
		s.errStage("sync")
	default:
		s.Log.Info("sync tick done",
			zap.Int("season", season),
			zap.Int("week", week),
			zap.Int("processed", res.Processed),
			zap.Int("updated", res.Updated),
		)
		if res.Updated > 0 && s.Publ != nil {
			evt := events.ResultsUpdated{
				Season:    season,
				Week:      week,
				Processed: res.Processed,
				Updated:   res.Updated,
				GameIDs:   res.UpdatedIDs,
				Source:    "live-sync-worker",
				Ts:        s.now(),
			}
			if perr := s.Publ.PublishResultsUpdated(tctx, evt); perr != nil {
				s.Log.Warn("publish results_updated failed", zap.Error(perr))
			}
		}
	}

	if _, err := s.Recon.Reconcile(tctx); err != nil {
		s.Log.Warn("reconcile pass failed", zap.Error(err))
		s.errStage("reconcile")
	}

	still, err := s.Games.HasLiveGames(tctx, s.now(), s.Cfg.ActivationPast, s.Cfg.ActivationFuture)
	if err != nil {
		// segue ativo; a malha de segurança corrige depois
		s.Log.Warn("post-tick live check failed", zap.Error(err))
		s.errStage("evaluate")
		return
	}
	if !still {
		s.deactivate()
	}
}

// liveWeek resolve qual semana sincronizar agora. Na virada de rodada o
// calendário da semana nova já existe, mas o jogo de segunda da semana
// anterior ainda pode estar rolando: nesse caso sincroniza a anterior.
func (s *Scheduler) liveWeek(ctx context.Context) (int, int, error) {
	season, week, err := s.Games.LiveWeek(ctx, s.now())
	if err != nil {
		return 0, 0, err
	}
	if week > 1 {
		still, err := s.Games.WeekStillLive(ctx, season, week-1)
		if err == nil && still {
			return season, week - 1, nil
		}
	}
	return season, week, nil
}

// deactivate cancela o tick repetitivo e rearma o monitoramento depois
// de um cooldown curto
func (s *Scheduler) deactivate() {
	s.mu.Lock()
	s.stopTickerLocked()
	s.state = StateIdle
	ctx := s.ctx
	s.mu.Unlock()

	s.Log.Info("no live games left, deactivating")

	time.AfterFunc(s.Cfg.Cooldown, func() {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		s.Evaluate(ctx)
	})
}

// safetyLoop re-deriva o estado periodicamente pra recuperar timer perdido
// (restart de processo, clock skew); nunca confia no estado em memória
func (s *Scheduler) safetyLoop(ctx context.Context) {
	t := time.NewTicker(s.Cfg.SafetyInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Evaluate(ctx)
		}
	}
}

func (s *Scheduler) errStage(stage string) {
	if s.OnError != nil {
		s.OnError(stage)
	}
}

func (s *Scheduler) stopArmTimerLocked() {
	if s.armTimer != nil {
		s.armTimer.Stop()
		s.armTimer = nil
	}
}

func (s *Scheduler) stopTickerLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.tickerDone != nil {
		close(s.tickerDone)
		s.tickerDone = nil
	}
}
