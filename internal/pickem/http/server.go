package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/livesync/ratelimit"
	"github.com/radieske/pickem-pools-poc/internal/pickem/deadline"
	"github.com/radieske/pickem-pools-poc/internal/pickem/dto"
	"github.com/radieske/pickem-pools-poc/internal/pickem/picks"
	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

const currentWeekKey = "pickem:current_week"

// API expõe os endpoints REST do serviço de bolão: jogos, palpites,
// classificação e operações administrativas
type API struct {
	Log     *zap.Logger
	Repo    *repo.Store
	Engine  *picks.Engine
	Limiter *ratelimit.Limiter
	Cache   *redis.Client // opcional
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/games", a.listGames)                    // jogos de uma temporada/semana
	r.Get("/v1/weeks/current", a.currentWeek)          // semana corrente + jogos
	r.Get("/v1/entries/{entryID}/picks", a.getPicks)   // palpites da entry na semana
	r.Put("/v1/entries/{entryID}/picks", a.savePicks)  // substitui os palpites da semana
	r.Post("/v1/entries/{entryID}/picks", a.savePicks) // idem (clientes antigos usam POST)
	r.Get("/v1/standings", a.standings)                // classificação semanal
	r.Post("/v1/admin/reconcile", a.reconcile)         // passe manual de travamento
	r.Get("/v1/admin/ratelimit", a.ratelimitStatus)    // orçamento do provider
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func seasonWeek(r *http.Request) (int, int, bool) {
	season, err := strconv.Atoi(r.URL.Query().Get("season"))
	if err != nil {
		return 0, 0, false
	}
	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil {
		return 0, 0, false
	}
	return season, week, true
}

// listGames retorna os jogos de uma temporada/semana
func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	season, week, ok := seasonWeek(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "season and week required"})
		return
	}
	games, err := a.Repo.GamesForWeek(r.Context(), season, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// currentWeek resolve a semana viva e devolve o calendário dela,
// preferencialmente do cache
func (a *API) currentWeek(w http.ResponseWriter, r *http.Request) {
	if a.Cache != nil {
		if b, err := a.Cache.Get(r.Context(), currentWeekKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(b)
			return
		}
	}

	season, week, err := a.Repo.LiveWeek(r.Context(), time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	games, err := a.Repo.GamesForWeek(r.Context(), season, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := dto.CurrentWeekResponse{Season: season, Week: week, Games: games}
	if a.Cache != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = a.Cache.Set(r.Context(), currentWeekKey, b, 30*time.Second).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// getPicks retorna os palpites da entry na semana, junto com o deadline
// resolvido e se a semana ainda aceita edição
func (a *API) getPicks(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	season, week, ok := seasonWeek(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "season and week required"})
		return
	}

	preds, err := a.Repo.PicksByEntryWeek(r.Context(), entryID, season, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := dto.WeekPicksResponse{
		EntryID: entryID,
		Season:  season,
		Week:    week,
		Picks:   preds,
	}
	if resp.Picks == nil {
		resp.Picks = []repo.Prediction{}
	}

	// CanEdit é derivado da política do pool; sem política resolvível a
	// semana fica fechada
	if poolID, err := a.Repo.PoolOfEntry(r.Context(), entryID); err == nil {
		settings, serr := a.Repo.DeadlineSettings(r.Context(), poolID)
		games, gerr := a.Repo.GamesForWeek(r.Context(), season, week)
		if serr == nil && gerr == nil {
			res := deadline.Resolve(settings, games)
			resp.CanEdit = res.CanEditWeek(time.Now().UTC())
			if res.Resolved {
				d := res.WeekLock
				resp.Deadline = &d
			}
		}
	} else if err == repo.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// savePicks substitui o conjunto de palpites destravados da entry na
// semana pelo envio
func (a *API) savePicks(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	var req dto.SavePicksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if req.Season <= 0 || req.Week <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "season and week required"})
		return
	}

	// ?mode= tem precedência sobre o corpo; default final
	mode := picks.ModeFinal
	if m := r.URL.Query().Get("mode"); m != "" {
		req.Mode = m
	}
	if req.Mode == string(picks.ModeDraft) {
		mode = picks.ModeDraft
	}

	input := make([]picks.PickInput, 0, len(req.Picks))
	for _, p := range req.Picks {
		input = append(input, picks.PickInput{
			GameID:     p.GameID,
			PickedTeam: p.PickedTeam,
			Weight:     p.Weight,
		})
	}

	res, err := a.Engine.SaveWeek(r.Context(), entryID, req.Season, req.Week, mode, input)
	if err != nil {
		if err == repo.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
			return
		}
		a.Log.Error("save picks failed", zap.String("entry", entryID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	switch {
	case len(res.Violations) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, dto.SavePicksResponse{
			Status:     "rejected",
			Violations: res.Violations,
		})
	case res.WeekLocked:
		writeJSON(w, http.StatusConflict, dto.SavePicksResponse{
			Status:  "week_locked",
			Message: "deadline passed; picks are locked",
		})
	default:
		writeJSON(w, http.StatusOK, dto.SavePicksResponse{
			Status:  "saved",
			Saved:   res.Saved,
			Dropped: res.Dropped,
		})
	}
}

// standings retorna a classificação da semana
func (a *API) standings(w http.ResponseWriter, r *http.Request) {
	season, week, ok := seasonWeek(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "season and week required"})
		return
	}
	rk, err := a.Repo.WeekStandings(r.Context(), season, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rk == nil {
		rk = []repo.Standing{}
	}
	writeJSON(w, http.StatusOK, dto.StandingsResponse{Season: season, Week: week, Rankings: rk})
}

// reconcile dispara um passe de travamento sob demanda (operacional)
func (a *API) reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Engine.Reconcile(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ratelimitStatus reporta o orçamento de chamadas ao provider
func (a *API) ratelimitStatus(w http.ResponseWriter, r *http.Request) {
	if a.Limiter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "limiter unavailable"})
		return
	}
	st, err := a.Limiter.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
