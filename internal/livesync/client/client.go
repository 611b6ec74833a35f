package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/pickem-pools-poc/internal/pickem/repo"
)

const endpointScoreboard = "/v1/scoreboard"

// ErrBudgetExhausted sinaliza tick sem orçamento; o scheduler pula o tick,
// não é erro pro operador
var ErrBudgetExhausted = errors.New("provider call budget exhausted")

// GameScore é o snapshot por jogo vindo do provider
type GameScore struct {
	GameID    string `json:"game_id"`
	Status    string `json:"status"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Winner    string `json:"winner,omitempty"`
}

// Scoreboard é o payload do provider pra uma temporada/semana
type Scoreboard struct {
	Season int         `json:"season"`
	Week   int         `json:"week"`
	Games  []GameScore `json:"games"`
}

// GameStore é o recorte de persistência usado pelo sync
type GameStore interface {
	ApplyGameResult(ctx context.Context, r repo.GameResult) (bool, error)
}

// Gate é o portão de orçamento na frente do provider
type Gate interface {
	CanCall(ctx context.Context) bool
	Record(ctx context.Context, endpoint string, success, fromCache bool)
}

// Client consome o provider externo de resultados, com cache Redis do
// scoreboard (hits não gastam orçamento) e registro de cada chamada no gate
type Client struct {
	Log      *zap.Logger
	BaseURL  string
	HTTP     *http.Client
	Cache    *redis.Client // opcional
	CacheTTL time.Duration
	Gate     Gate
	Games    GameStore
}

func New(log *zap.Logger, baseURL string, cache *redis.Client, gate Gate, games GameStore) *Client {
	return &Client{
		Log:      log,
		BaseURL:  baseURL,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Cache:    cache,
		CacheTTL: 90 * time.Second,
		Gate:     gate,
		Games:    games,
	}
}

// SyncResult resume um tick de sincronização
type SyncResult struct {
	Processed  int      `json:"processed"`
	Updated    int      `json:"updated"`
	UpdatedIDs []string `json:"updated_ids,omitempty"`
}

// Sync puxa o scoreboard da semana e aplica os resultados nos jogos.
// Falha de um jogo individual vira warn e o restante segue.
func (c *Client) Sync(ctx context.Context, season, week int) (SyncResult, error) {
	var out SyncResult

	sb, err := c.scoreboard(ctx, season, week)
	if err != nil {
		return out, err
	}

	for _, g := range sb.Games {
		out.Processed++
		changed, err := c.Games.ApplyGameResult(ctx, repo.GameResult{
			GameID:    g.GameID,
			Status:    g.Status,
			HomeScore: g.HomeScore,
			AwayScore: g.AwayScore,
			Winner:    g.Winner,
		})
		if err != nil {
			c.Log.Warn("apply game result failed", zap.String("game", g.GameID), zap.Error(err))
			continue
		}
		if changed {
			out.Updated++
			out.UpdatedIDs = append(out.UpdatedIDs, g.GameID)
		}
	}
	return out, nil
}

// LiveStatus retorna o snapshot de status por jogo da semana
func (c *Client) LiveStatus(ctx context.Context, season, week int) (map[string]string, error) {
	sb, err := c.scoreboard(ctx, season, week)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(sb.Games))
	for _, g := range sb.Games {
		out[g.GameID] = g.Status
	}
	return out, nil
}

func cacheKey(season, week int) string {
	return fmt.Sprintf("scoreboard:%d:%d", season, week)
}

// scoreboard busca o payload preferencialmente do cache; miss gasta orçamento
func (c *Client) scoreboard(ctx context.Context, season, week int) (*Scoreboard, error) {
	key := cacheKey(season, week)

	if c.Cache != nil {
		if b, err := c.Cache.Get(ctx, key).Bytes(); err == nil {
			var sb Scoreboard
			if jerr := json.Unmarshal(b, &sb); jerr == nil {
				c.Gate.Record(ctx, endpointScoreboard, true, true)
				return &sb, nil
			}
		}
	}

	if !c.Gate.CanCall(ctx) {
		return nil, ErrBudgetExhausted
	}

	url := fmt.Sprintf("%s%s?season=%d&week=%d", c.BaseURL, endpointScoreboard, season, week)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		c.Gate.Record(ctx, endpointScoreboard, false, false)
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		c.Gate.Record(ctx, endpointScoreboard, false, false)
		return nil, fmt.Errorf("provider scoreboard http %d", res.StatusCode)
	}

	var sb Scoreboard
	if err := json.NewDecoder(res.Body).Decode(&sb); err != nil {
		c.Gate.Record(ctx, endpointScoreboard, false, false)
		return nil, err
	}
	c.Gate.Record(ctx, endpointScoreboard, true, false)

	if c.Cache != nil {
		if b, err := json.Marshal(sb); err == nil {
			if err := c.Cache.Set(ctx, key, b, c.CacheTTL).Err(); err != nil {
				c.Log.Warn("scoreboard cache set failed", zap.Error(err))
			}
		}
	}
	return &sb, nil
}
