package server

import (
	"time"

	"league-tracker/internal/api"
	"league-tracker/internal/domain"

	"github.com/goccy/go-json"
)

type SyncMatchesRequest struct {
	RiotID string `json:"riot_id"`
}

type SyncMatchesResponse struct {
	Identity      Identity `json:"identity"`
	Matches       []Match  `json:"matches"`
	InlineFetched int      `json:"inline_fetched"`
	Enqueued      int      `json:"enqueued"`
	Jobs          []string `json:"jobs,omitempty"`
}

type GetIdentityRequest struct {
	RiotID string `json:"riot_id"`
}

type GetIdentityResponse struct {
	Identity Identity `json:"identity"`
}

// GetRankRequest takes a stored PUUID or Riot ID.
type GetRankRequest struct {
	Identity string `json:"identity"`
}

type GetRankResponse struct {
	Identity Identity    `json:"identity"`
	Entries  []RankEntry `json:"entries"`
}

type RankEntry struct {
	QueueType    string `json:"queue_type"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"league_points"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	HotStreak    bool   `json:"hot_streak"`
}

type GetMatchRequest struct {
	MatchID string `json:"match_id"`
}

type GetMatchResponse struct {
	Match Match `json:"match"`
}

type ListMatchesRequest struct {
	Puuid string `json:"puuid"`
	Limit int    `json:"limit"`
}

type ListMatchesResponse struct {
	Identity Identity `json:"identity"`
	Matches  []Match  `json:"matches"`
}

type GetWorkerMetricsRequest struct{}

type GetWorkerMetricsResponse struct {
	Metrics map[string]int64 `json:"metrics"`
}

type Identity struct {
	Puuid         string `json:"puuid"`
	RiotID        string `json:"riot_id"`
	GameName      string `json:"game_name"`
	TagLine       string `json:"tag_line"`
	ProfileIconID *int   `json:"profile_icon_id,omitempty"`
	SummonerLevel *int   `json:"summoner_level,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

type Match struct {
	MatchID     string          `json:"match_id"`
	HasDetail   bool            `json:"has_detail"`
	GameStartAt string          `json:"game_start_at,omitempty"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

func toIdentity(i *domain.Identity) Identity {
	return Identity{
		Puuid:         i.Puuid,
		RiotID:        i.RiotID(),
		GameName:      i.GameName,
		TagLine:       i.TagLine,
		ProfileIconID: i.ProfileIconID,
		SummonerLevel: i.SummonerLevel,
		UpdatedAt:     i.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toMatch(m domain.Match, withDetail bool) Match {
	out := Match{
		MatchID:   m.ExternalID,
		HasDetail: m.HasDetail(),
	}
	if m.GameStartAt != nil {
		out.GameStartAt = m.GameStartAt.UTC().Format(time.RFC3339)
	}
	if withDetail && m.HasDetail() {
		out.Detail = json.RawMessage(m.Detail)
	}
	return out
}

func toMatches(matches []domain.Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatch(m, false))
	}
	return out
}

func toRankEntries(entries []api.LeagueEntryDTO) []RankEntry {
	out := make([]RankEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RankEntry{
			QueueType:    e.QueueType,
			Tier:         e.Tier,
			Rank:         e.Rank,
			LeaguePoints: e.LeaguePoints,
			Wins:         e.Wins,
			Losses:       e.Losses,
			HotStreak:    e.HotStreak,
		})
	}
	return out
}
