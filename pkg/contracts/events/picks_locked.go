package events

import "time"

// Evento emitido pelo motor de travamento após um passe de reconciliação
// que travou palpites de um pool/semana.
type PicksLocked struct {
	RunID    string    `json:"run_id"` // id do passe de reconciliação
	PoolID   string    `json:"pool_id"`
	Season   int       `json:"season"`
	Week     int       `json:"week"`
	Locked   int       `json:"locked"`             // quantidade de palpites travados
	GameIDs  []string  `json:"game_ids,omitempty"` // jogos afetados (política per_event)
	LockedAt time.Time `json:"locked_at"`
}
