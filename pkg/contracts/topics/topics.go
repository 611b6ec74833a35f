package topics

const (
	// Resultados de jogos (publicado pelo live-sync-worker)
	ResultsUpdated = "results_updated"

	// Palpites travados pelo motor de deadline
	PicksLocked = "picks_locked"
)
