package repo

import "time"

// Status possíveis de um jogo (mutado apenas pelo pipeline de sync)
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPostponed  = "postponed"
)

// Tipos de jogo da temporada NFL
const (
	GameTypeRegular    = "regular"
	GameTypeWildcard   = "wildcard"
	GameTypeDivisional = "divisional"
	GameTypeConference = "conference"
	GameTypeSuperbowl  = "superbowl"
)

// Game é um jogo persistido na tabela games. Nunca é deletado;
// kickoff é sempre um instante UTC (TIMESTAMPTZ).
type Game struct {
	ID        string    `json:"id"` // ex: "2025_01_KC_BUF"
	Season    int       `json:"season"`
	Week      int       `json:"week"`
	GameType  string    `json:"game_type"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	Kickoff   time.Time `json:"kickoff"`
	Status    string    `json:"status"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Winner    string    `json:"winner,omitempty"` // abreviação; vazio até completar
	UpdatedAt time.Time `json:"updated_at"`
}

// Prediction é o palpite de uma entry para um jogo de uma semana.
// Depois de locked=true só o motor de travamento altera a linha
// (campos de pontuação).
type Prediction struct {
	ID           string     `json:"id"`
	EntryID      string     `json:"entry_id"`
	Season       int        `json:"season"`
	Week         int        `json:"week"`
	GameID       string     `json:"game_id"`
	PickedTeam   string     `json:"picked_team"`
	Weight       int        `json:"weight"` // peso de confiança, único por entry/semana
	Locked       bool       `json:"locked"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	IsCorrect    *bool      `json:"is_correct,omitempty"`
	PointsEarned int        `json:"points_earned"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DeadlineSettings é a política de deadline configurada por pool.
// Kind desconhecido cai no fallback do resolver.
type DeadlineSettings struct {
	PoolID        string
	Kind          string // week_first_kickoff | week_custom_offset | per_event
	OffsetMinutes int    // só relevante para week_custom_offset
}

// PickGroup identifica um conjunto pool/temporada/semana com palpites
// ainda destravados, alvo de um passe de reconciliação.
type PickGroup struct {
	PoolID string
	Season int
	Week   int
}

// ReplaceResult é o resultado da substituição transacional de palpites.
type ReplaceResult struct {
	Saved   int      // palpites gravados
	Dropped []string // game_ids descartados por já estarem travados
}

// GameResult é o snapshot de resultado vindo do provider externo.
type GameResult struct {
	GameID    string
	Status    string
	HomeScore int
	AwayScore int
	Winner    string
}

// Standing é a linha semanal de classificação de uma entry.
type Standing struct {
	EntryID string `json:"entry_id"`
	Season  int    `json:"season"`
	Week    int    `json:"week"`
	Points  int    `json:"points"`
	Correct int    `json:"correct"`
	Picked  int    `json:"picked"`
}
