package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// Janela deslizante do orçamento de chamadas
	Window = time.Hour

	// Horizonte de retenção do log (poda oportunista)
	Retention = 25 * time.Hour

	// Tamanho do tail exposto no status
	statusTail = 20
)

// Entry é uma linha do log append-only de chamadas externas
type Entry struct {
	Endpoint  string    `json:"endpoint"`
	Success   bool      `json:"success"`
	FromCache bool      `json:"from_cache"`
	CalledAt  time.Time `json:"called_at"`
}

// Log é o armazenamento do registro de chamadas. O orçamento corrente é
// sempre derivado do log, nunca de contadores em memória — é o que faz o
// limite sobreviver a restart do processo.
type Log interface {
	// CountInWindow conta chamadas bem-sucedidas e não-cacheadas desde o instante dado
	CountInWindow(ctx context.Context, service string, since time.Time) (int, error)
	// OldestInWindow retorna o timestamp da chamada contável mais antiga na janela
	OldestInWindow(ctx context.Context, service string, since time.Time) (time.Time, bool, error)
	Append(ctx context.Context, service string, e Entry) error
	PruneBefore(ctx context.Context, service string, cutoff time.Time) error
	Tail(ctx context.Context, service string, limit int) ([]Entry, error)
}

// Limiter é o portão de orçamento na frente do provider de resultados
type Limiter struct {
	Logg    *zap.Logger
	Store   Log
	Service string
	Ceiling int
	Now     func() time.Time // injetável pra teste
}

func New(log *zap.Logger, store Log, service string, ceiling int) *Limiter {
	return &Limiter{Logg: log, Store: store, Service: service, Ceiling: ceiling, Now: time.Now}
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// CanCall responde se ainda há orçamento na janela corrente.
// Falha de storage fecha o portão (fail closed): melhor pular um tick
// do que estourar a cota do provider.
func (l *Limiter) CanCall(ctx context.Context) bool {
	used, err := l.Store.CountInWindow(ctx, l.Service, l.now().Add(-Window))
	if err != nil {
		l.Logg.Warn("rate limit count failed, failing closed", zap.Error(err))
		return false
	}
	return used < l.Ceiling
}

// Record registra uma chamada no log e poda linhas além da retenção.
// A poda é oportunista: falha vira warn, nunca erro pro caller.
func (l *Limiter) Record(ctx context.Context, endpoint string, success, fromCache bool) {
	now := l.now()
	if err := l.Store.Append(ctx, l.Service, Entry{
		Endpoint:  endpoint,
		Success:   success,
		FromCache: fromCache,
		CalledAt:  now,
	}); err != nil {
		l.Logg.Warn("rate limit append failed", zap.Error(err))
		return
	}
	if err := l.Store.PruneBefore(ctx, l.Service, now.Add(-Retention)); err != nil {
		l.Logg.Warn("rate limit prune failed", zap.Error(err))
	}
}

// Status é o snapshot operacional do limiter
type Status struct {
	Limit     int        `json:"limit"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"` // oldest na janela + 1h
	Recent    []Entry    `json:"recent"`
}

// Status reporta orçamento restante, instante de reset e o tail do log
func (l *Limiter) Status(ctx context.Context) (Status, error) {
	st := Status{Limit: l.Ceiling}
	since := l.now().Add(-Window)

	used, err := l.Store.CountInWindow(ctx, l.Service, since)
	if err != nil {
		return st, err
	}
	st.Used = used
	st.Remaining = l.Ceiling - used
	if st.Remaining < 0 {
		st.Remaining = 0
	}

	if oldest, ok, err := l.Store.OldestInWindow(ctx, l.Service, since); err != nil {
		return st, err
	} else if ok {
		reset := oldest.Add(Window)
		st.ResetAt = &reset
	}

	st.Recent, err = l.Store.Tail(ctx, l.Service, statusTail)
	return st, err
}
