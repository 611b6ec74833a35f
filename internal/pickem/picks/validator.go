package picks

import (
	"fmt"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

// Mode define o rigor da validação de um envio de palpites
type Mode string

const (
	ModeFinal Mode = "final" // envio definitivo: semana completa obrigatória
	ModeDraft Mode = "draft" // autosave/rascunho: subconjunto é aceito
)

// PickInput é um palpite enviado pelo participante
type PickInput struct {
	GameID     string `json:"game_id"`
	PickedTeam string `json:"picked_team"`
	Weight     int    `json:"weight"`
}

// Violation descreve uma falha de validação, chaveada por jogo/peso.
// Violações nunca tocam o storage; voltam pro caller como dado.
type Violation struct {
	GameID string `json:"game_id,omitempty"`
	Weight int    `json:"weight,omitempty"`
	Reason string `json:"reason"`
}

// Validate checa um envio contra os jogos da semana.
// Regras comuns: jogo conhecido, time válido, peso distinto dentro de [1..N].
// ModeFinal exige exatamente um palpite por jogo disponível.
func Validate(games []repo.Game, picks []PickInput, mode Mode) []Violation {
	var out []Violation

	byID := make(map[string]repo.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}
	n := len(games)

	seenGame := make(map[string]bool, len(picks))
	seenWeight := make(map[int]bool, len(picks))

	for _, p := range picks {
		g, ok := byID[p.GameID]
		if !ok {
			out = append(out, Violation{GameID: p.GameID, Reason: "unknown_game"})
			continue
		}
		if seenGame[p.GameID] {
			out = append(out, Violation{GameID: p.GameID, Reason: "duplicate_game"})
			continue
		}
		seenGame[p.GameID] = true

		if p.PickedTeam != g.HomeTeam && p.PickedTeam != g.AwayTeam {
			out = append(out, Violation{GameID: p.GameID, Reason: "invalid_team"})
		}
		if p.Weight < 1 || p.Weight > n {
			out = append(out, Violation{GameID: p.GameID, Weight: p.Weight,
				Reason: fmt.Sprintf("weight_out_of_range_1_%d", n)})
		} else if seenWeight[p.Weight] {
			out = append(out, Violation{GameID: p.GameID, Weight: p.Weight, Reason: "duplicate_weight"})
		} else {
			seenWeight[p.Weight] = true
		}
	}

	if mode == ModeFinal {
		for _, g := range games {
			if !seenGame[g.ID] {
				out = append(out, Violation{GameID: g.ID, Reason: "missing_pick"})
			}
		}
	}

	return out
}
