package events

import "time"

// Evento publicado no tópico "results_updated" após cada tick de sincronização
// que alterou pelo menos um jogo.
type ResultsUpdated struct {
	Season    int       `json:"season"`
	Week      int       `json:"week"`
	Processed int       `json:"processed"`
	Updated   int       `json:"updated"`
	GameIDs   []string  `json:"game_ids"` // jogos alterados neste tick
	Source    string    `json:"source"`   // "live-sync-worker"
	Ts        time.Time `json:"ts"`
}
