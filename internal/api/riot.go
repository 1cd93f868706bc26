package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"league-tracker/internal/domain"

	"github.com/goccy/go-json"
)

type AccountDTO struct {
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type SummonerDTO struct {
	Puuid         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int    `json:"summonerLevel"`
	RevisionDate  int64  `json:"revisionDate"`
}

// LeagueEntryDTO is one ranked queue standing.
type LeagueEntryDTO struct {
	LeagueID     string `json:"leagueId"`
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	HotStreak    bool   `json:"hotStreak"`
	Veteran      bool   `json:"veteran"`
	FreshBlood   bool   `json:"freshBlood"`
	Inactive     bool   `json:"inactive"`
}

// MatchDetail keeps the raw payload; only the start time is interpreted.
type MatchDetail struct {
	MatchID     string
	Raw         []byte
	GameStartAt *time.Time
}

type matchEnvelope struct {
	Metadata struct {
		MatchID string `json:"matchId"`
	} `json:"metadata"`
	Info struct {
		GameStartTimestamp int64 `json:"gameStartTimestamp"`
		GameCreation       int64 `json:"gameCreation"`
	} `json:"info"`
}

func (c *Client) GetAccountByRiotID(ctx context.Context, riotID domain.RiotID) (*AccountDTO, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionalURL, url.PathEscape(riotID.GameName), url.PathEscape(riotID.TagLine))
	return getJSON[AccountDTO](ctx, c, GroupAccount, u)
}

func (c *Client) GetAccountByPuuid(ctx context.Context, puuid string) (*AccountDTO, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-puuid/%s", c.regionalURL, url.PathEscape(puuid))
	return getJSON[AccountDTO](ctx, c, GroupAccount, u)
}

func (c *Client) GetSummonerByPuuid(ctx context.Context, puuid string) (*SummonerDTO, error) {
	u := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s", c.platformURL, url.PathEscape(puuid))
	return getJSON[SummonerDTO](ctx, c, GroupSummoner, u)
}

// GetRankByPuuid returns every ranked queue entry; unranked players get none.
func (c *Client) GetRankByPuuid(ctx context.Context, puuid string) ([]LeagueEntryDTO, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s", c.platformURL, url.PathEscape(puuid))
	entries, err := getJSON[[]LeagueEntryDTO](ctx, c, GroupRank, u)
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

// GetMatchIDs returns one page of match ids, newest first.
func (c *Client) GetMatchIDs(ctx context.Context, puuid string, start, count int) ([]string, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?start=%d&count=%d",
		c.regionalURL, url.PathEscape(puuid), start, count)
	ids, err := getJSON[[]string](ctx, c, GroupMatchIDs, u)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *Client) GetMatch(ctx context.Context, matchID string) (*MatchDetail, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalURL, url.PathEscape(matchID))
	body, err := c.Call(ctx, GroupMatchDetail, u)
	if err != nil {
		return nil, err
	}

	var env matchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", matchID, err)
	}

	detail := &MatchDetail{MatchID: matchID, Raw: body}
	ts := env.Info.GameStartTimestamp
	if ts == 0 {
		ts = env.Info.GameCreation
	}
	if ts > 0 {
		t := time.UnixMilli(ts).UTC()
		detail.GameStartAt = &t
	}
	return detail, nil
}

func getJSON[T any](ctx context.Context, c *Client, group, u string) (*T, error) {
	body, err := c.Call(ctx, group, u)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", group, err)
	}
	return &result, nil
}
