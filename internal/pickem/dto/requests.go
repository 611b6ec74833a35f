package dto

// SavePicksRequest é o envio de palpites de uma entry pra uma semana.
// O conjunto enviado substitui integralmente o que estiver destravado.
type SavePicksRequest struct {
	Season int        `json:"season"`
	Week   int        `json:"week"`
	Mode   string     `json:"mode,omitempty"` // "final" (default) | "draft"
	Picks  []PickItem `json:"picks"`
}

type PickItem struct {
	GameID     string `json:"game_id"`
	PickedTeam string `json:"picked_team"`
	Weight     int    `json:"weight"` // peso de confiança, 1..N
}
