package dto

import (
	"time"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

type SavePicksResponse struct {
	Status     string   `json:"status"` // saved | rejected | week_locked
	Saved      int      `json:"saved"`
	Dropped    []string `json:"dropped,omitempty"` // jogos já travados no envio
	Violations any      `json:"violations,omitempty"`
	Message    string   `json:"message,omitempty"`
}

type WeekPicksResponse struct {
	EntryID  string            `json:"entry_id"`
	Season   int               `json:"season"`
	Week     int               `json:"week"`
	CanEdit  bool              `json:"can_edit"`
	Deadline *time.Time        `json:"deadline,omitempty"` // trava da semana, se resolvida
	Picks    []repo.Prediction `json:"picks"`
}

type CurrentWeekResponse struct {
	Season int         `json:"season"`
	Week   int         `json:"week"`
	Games  []repo.Game `json:"games"`
}

type StandingsResponse struct {
	Season   int             `json:"season"`
	Week     int             `json:"week"`
	Rankings []repo.Standing `json:"rankings"`
}
