package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store implementa a persistência de jogos, palpites e configurações de pool
type Store struct{ db *sql.DB }

// NewStore retorna uma instância do repositório do pick'em
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

var ErrNotFound = errors.New("not found")

// GamesForWeek retorna os jogos de uma temporada/semana ordenados por kickoff
func (s *Store) GamesForWeek(ctx context.Context, season, week int) ([]Game, error) {
	const q = `
		SELECT id, season, week, game_type, home_team, away_team, kickoff,
		       status, home_score, away_score, COALESCE(winner,''), updated_at
		FROM games
		WHERE season=$1 AND week=$2
		ORDER BY kickoff, id
	`
	rows, err := s.db.QueryContext(ctx, q, season, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Season, &g.Week, &g.GameType, &g.HomeTeam, &g.AwayTeam,
			&g.Kickoff, &g.Status, &g.HomeScore, &g.AwayScore, &g.Winner, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// NextKickoff retorna o próximo jogo agendado com kickoff após o instante dado
// Retorna (nil, nil) quando não há jogos futuros
func (s *Store) NextKickoff(ctx context.Context, after time.Time) (*Game, error) {
	const q = `
		SELECT id, season, week, game_type, home_team, away_team, kickoff,
		       status, home_score, away_score, COALESCE(winner,''), updated_at
		FROM games
		WHERE status=$1 AND kickoff > $2
		ORDER BY kickoff
		LIMIT 1
	`
	var g Game
	err := s.db.QueryRowContext(ctx, q, StatusScheduled, after).Scan(
		&g.ID, &g.Season, &g.Week, &g.GameType, &g.HomeTeam, &g.AwayTeam,
		&g.Kickoff, &g.Status, &g.HomeScore, &g.AwayScore, &g.Winner, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// HasLiveGames informa se algum jogo está em andamento ou com kickoff dentro
// da janela de ativação (past pra trás, future pra frente do instante dado)
func (s *Store) HasLiveGames(ctx context.Context, now time.Time, past, future time.Duration) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM games
			WHERE status = $1
			   OR (status = $2 AND kickoff BETWEEN $3 AND $4)
		)
	`
	var ok bool
	err := s.db.QueryRowContext(ctx, q, StatusInProgress, StatusScheduled,
		now.Add(-past), now.Add(future)).Scan(&ok)
	return ok, err
}

// LiveWeek deriva qual temporada/semana está "viva" agora: a semana do próximo
// jogo agendado, ou a última semana com jogos quando a temporada já acabou
func (s *Store) LiveWeek(ctx context.Context, now time.Time) (season, week int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT season, week FROM games
		WHERE kickoff > $1 AND status=$2
		ORDER BY kickoff LIMIT 1`, now, StatusScheduled).Scan(&season, &week)
	if err == sql.ErrNoRows {
		err = s.db.QueryRowContext(ctx, `
			SELECT season, week FROM games
			ORDER BY kickoff DESC LIMIT 1`).Scan(&season, &week)
		if err == sql.ErrNoRows {
			return 0, 0, ErrNotFound
		}
	}
	return season, week, err
}

// WeekStillLive informa se a semana ainda tem jogo em andamento
// (usado pro fallback de semana anterior na virada de rodada)
func (s *Store) WeekStillLive(ctx context.Context, season, week int) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM games
			WHERE season=$1 AND week=$2 AND status=$3
		)
	`
	var ok bool
	err := s.db.QueryRowContext(ctx, q, season, week, StatusInProgress).Scan(&ok)
	return ok, err
}

// ApplyGameResult atualiza status/placar de um jogo a partir do snapshot do
// provider. Retorna true apenas quando algo de fato mudou
func (s *Store) ApplyGameResult(ctx context.Context, r GameResult) (bool, error) {
	const q = `
		UPDATE games SET
		  status=$2, home_score=$3, away_score=$4,
		  winner=NULLIF($5,''), updated_at=now()
		WHERE id=$1 AND (
		  status IS DISTINCT FROM $2
		  OR home_score IS DISTINCT FROM $3
		  OR away_score IS DISTINCT FROM $4
		  OR winner IS DISTINCT FROM NULLIF($5,'')
		)
	`
	res, err := s.db.ExecContext(ctx, q, r.GameID, r.Status, r.HomeScore, r.AwayScore, r.Winner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeadlineSettings retorna a política de deadline do pool
// Retorna (nil, nil) quando o pool não tem política configurada
func (s *Store) DeadlineSettings(ctx context.Context, poolID string) (*DeadlineSettings, error) {
	var d DeadlineSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT pool_id, deadline_kind, offset_minutes
		FROM pool_settings WHERE pool_id=$1`, poolID).
		Scan(&d.PoolID, &d.Kind, &d.OffsetMinutes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// PoolOfEntry resolve o pool de uma entry
func (s *Store) PoolOfEntry(ctx context.Context, entryID string) (string, error) {
	var poolID string
	err := s.db.QueryRowContext(ctx,
		`SELECT pool_id FROM pool_entries WHERE entry_id=$1`, entryID).Scan(&poolID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return poolID, err
}

// UnlockedPickGroups lista os conjuntos pool/temporada/semana que ainda têm
// palpites destravados (alvos do passe de reconciliação)
func (s *Store) UnlockedPickGroups(ctx context.Context) ([]PickGroup, error) {
	const q = `
		SELECT DISTINCT e.pool_id, p.season, p.week
		FROM predictions p
		JOIN pool_entries e ON e.entry_id = p.entry_id
		WHERE NOT p.locked
		ORDER BY e.pool_id, p.season, p.week
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PickGroup
	for rows.Next() {
		var g PickGroup
		if err := rows.Scan(&g.PoolID, &g.Season, &g.Week); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LockWeek trava todos os palpites destravados do pool na semana
// Idempotente: linhas já travadas nunca são revisitadas
func (s *Store) LockWeek(ctx context.Context, poolID string, season, week int, now time.Time) (int64, error) {
	const q = `
		UPDATE predictions p SET locked=true, locked_at=$4, updated_at=$4
		FROM pool_entries e
		WHERE e.entry_id = p.entry_id AND e.pool_id = $1
		  AND p.season=$2 AND p.week=$3 AND NOT p.locked
	`
	res, err := s.db.ExecContext(ctx, q, poolID, season, week, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockGames trava os palpites destravados do pool apenas para os jogos dados
// (política per_event)
func (s *Store) LockGames(ctx context.Context, poolID string, season, week int, gameIDs []string, now time.Time) (int64, error) {
	if len(gameIDs) == 0 {
		return 0, nil
	}
	const q = `
		UPDATE predictions p SET locked=true, locked_at=$5, updated_at=$5
		FROM pool_entries e
		WHERE e.entry_id = p.entry_id AND e.pool_id = $1
		  AND p.season=$2 AND p.week=$3 AND NOT p.locked
		  AND p.game_id = ANY($4)
	`
	res, err := s.db.ExecContext(ctx, q, poolID, season, week, pq.Array(gameIDs), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ScoreCompleted pontua palpites travados de jogos completados que ainda não
// foram pontuados: acerto vale o peso de confiança, erro vale zero
func (s *Store) ScoreCompleted(ctx context.Context, season, week int) (int64, error) {
	const q = `
		UPDATE predictions p SET
		  is_correct = (p.picked_team = g.winner),
		  points_earned = CASE WHEN p.picked_team = g.winner THEN p.weight ELSE 0 END,
		  updated_at = now()
		FROM games g
		WHERE g.id = p.game_id AND p.season=$1 AND p.week=$2
		  AND p.locked AND p.is_correct IS NULL
		  AND g.status=$3 AND g.winner IS NOT NULL
	`
	res, err := s.db.ExecContext(ctx, q, season, week, StatusCompleted)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PicksByEntryWeek retorna os palpites de uma entry na semana
func (s *Store) PicksByEntryWeek(ctx context.Context, entryID string, season, week int) ([]Prediction, error) {
	const q = `
		SELECT id, entry_id, season, week, game_id, picked_team, weight,
		       locked, locked_at, is_correct, points_earned, created_at, updated_at
		FROM predictions
		WHERE entry_id=$1 AND season=$2 AND week=$3
		ORDER BY weight DESC, game_id
	`
	rows, err := s.db.QueryContext(ctx, q, entryID, season, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Season, &p.Week, &p.GameID, &p.PickedTeam,
			&p.Weight, &p.Locked, &p.LockedAt, &p.IsCorrect, &p.PointsEarned,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplacePicks executa a substituição transacional dos palpites de uma
// entry/semana:
//  1. trava as linhas existentes (FOR UPDATE) e lê o conjunto já travado
//  2. trava dentro da própria transação os jogos cujo deadline já passou
//     (lockedNow), fechando a corrida com o passe de reconciliação
//  3. descarta envios contra jogos travados (cliente pode estar defasado)
//  4. apaga as linhas destravadas e regrava o envio inteiro
//
// A substituição é integral: o conjunto armazenado destravado passa a ser
// exatamente o envio sobrevivente, nunca um patch parcial
func (s *Store) ReplacePicks(ctx context.Context, entryID string, season, week int, lockedNow []string, picks []Prediction) (ReplaceResult, error) {
	var out ReplaceResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT game_id, locked FROM predictions
		WHERE entry_id=$1 AND season=$2 AND week=$3
		FOR UPDATE`, entryID, season, week)
	if err != nil {
		return out, err
	}
	lockedSet := make(map[string]bool)
	for rows.Next() {
		var gameID string
		var locked bool
		if err := rows.Scan(&gameID, &locked); err != nil {
			rows.Close()
			return out, err
		}
		if locked {
			lockedSet[gameID] = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return out, err
	}
	rows.Close()

	// Reconciliação in-tx: um jogo que começou entre o passe externo e o
	// commit desta transação trava aqui, preservando o palpite já gravado
	if len(lockedNow) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE predictions SET locked=true, locked_at=now(), updated_at=now()
			WHERE entry_id=$1 AND season=$2 AND week=$3 AND NOT locked
			  AND game_id = ANY($4)`,
			entryID, season, week, pq.Array(lockedNow)); err != nil {
			return out, err
		}
		for _, id := range lockedNow {
			lockedSet[id] = true
		}
	}

	var kept []Prediction
	for _, p := range picks {
		if lockedSet[p.GameID] {
			out.Dropped = append(out.Dropped, p.GameID)
			continue
		}
		kept = append(kept, p)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM predictions
		WHERE entry_id=$1 AND season=$2 AND week=$3 AND NOT locked`,
		entryID, season, week); err != nil {
		return out, err
	}

	for _, p := range kept {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO predictions
			  (id, entry_id, season, week, game_id, picked_team, weight, locked, points_earned, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,false,0,now(),now())`,
			uuid.NewString(), entryID, season, week, p.GameID, p.PickedTeam, p.Weight); err != nil {
			return out, err
		}
	}

	if err := tx.Commit(); err != nil {
		return out, err
	}

	out.Saved = len(kept)
	return out, nil
}

// WeekStandings retorna a classificação de uma semana, melhor pontuação
// primeiro, desempate por acertos
func (s *Store) WeekStandings(ctx context.Context, season, week int) ([]Standing, error) {
	const q = `
		SELECT entry_id, season, week, points, correct, picked
		FROM weekly_standings
		WHERE season=$1 AND week=$2
		ORDER BY points DESC, correct DESC, entry_id
	`
	rows, err := s.db.QueryContext(ctx, q, season, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Standing
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.EntryID, &st.Season, &st.Week, &st.Points, &st.Correct, &st.Picked); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// RebuildStandings recalcula a classificação semanal a partir dos palpites
// (consumido pelo standings-worker a cada evento de resultado)
func (s *Store) RebuildStandings(ctx context.Context, season, week int) (int64, error) {
	const q = `
		INSERT INTO weekly_standings (entry_id, season, week, points, correct, picked, updated_at)
		SELECT p.entry_id, p.season, p.week,
		       COALESCE(SUM(p.points_earned),0),
		       COUNT(*) FILTER (WHERE p.is_correct),
		       COUNT(*),
		       now()
		FROM predictions p
		WHERE p.season=$1 AND p.week=$2
		GROUP BY p.entry_id, p.season, p.week
		ON CONFLICT (entry_id, season, week) DO UPDATE SET
		  points=EXCLUDED.points, correct=EXCLUDED.correct,
		  picked=EXCLUDED.picked, updated_at=EXCLUDED.updated_at
	`
	res, err := s.db.ExecContext(ctx, q, season, week)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
