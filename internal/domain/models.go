package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
)

type Identity struct {
	ID            string
	Puuid         string
	GameName      string
	TagLine       string
	ProfileIconID *int
	SummonerLevel *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (i Identity) RiotID() string {
	return i.GameName + "#" + i.TagLine
}

// IdentityProfile is what an upstream lookup says about an identity right now.
type IdentityProfile struct {
	Puuid         string
	GameName      string
	TagLine       string
	ProfileIconID *int
	SummonerLevel *int
}

type Match struct {
	ID          string
	ExternalID  string
	Detail      []byte // nil until fetched
	GameStartAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m Match) HasDetail() bool {
	return m.Detail != nil
}

type MatchStub struct {
	ID         string
	ExternalID string
	HasDetail  bool
}

// DetailFetchJob is the payload queued for the background worker.
type DetailFetchJob struct {
	MatchIDs   []string  `json:"match_ids"`
	Puuid      string    `json:"puuid,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DetailJobID is derived from the batch contents only, so re-enqueuing
// the same missing set collapses onto the same job.
func DetailJobID(matchIDs []string) string {
	sorted := slices.Clone(matchIDs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return "match_details:" + hex.EncodeToString(sum[:16])
}

type RiotID struct {
	GameName string
	TagLine  string
}

func (r RiotID) String() string {
	return r.GameName + "#" + r.TagLine
}

// ParseRiotID accepts "name#tag" or a bare name, which gets defaultTag.
func ParseRiotID(raw, defaultTag string) (RiotID, error) {
	value := strings.TrimSpace(raw)
	name, tag, _ := strings.Cut(value, "#")
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = defaultTag
	}
	if name == "" || tag == "" {
		return RiotID{}, fmt.Errorf("%w: riot id %q", ErrInvalidInput, raw)
	}
	return RiotID{GameName: name, TagLine: tag}, nil
}

// NormalizeMatchID prefixes bare numeric ids with the platform, e.g. NA1_4711.
func NormalizeMatchID(id, platform string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "_") {
		return id
	}
	return strings.ToUpper(platform) + "_" + id
}
