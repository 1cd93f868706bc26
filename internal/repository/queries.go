package repository

// Every write below is a single conflict-aware statement; none of them
// reads before it writes.
const (
	upsertIdentity = `
INSERT INTO identities (id, puuid, game_name, tag_line, profile_icon_id, summoner_level, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (puuid) DO UPDATE SET
    game_name = excluded.game_name,
    tag_line = excluded.tag_line,
    profile_icon_id = COALESCE(excluded.profile_icon_id, identities.profile_icon_id),
    summoner_level = COALESCE(excluded.summoner_level, identities.summoner_level),
    updated_at = excluded.updated_at
RETURNING id, puuid, game_name, tag_line, profile_icon_id, summoner_level, created_at, updated_at`

	selectIdentityColumns = `SELECT id, puuid, game_name, tag_line, profile_icon_id, summoner_level, created_at, updated_at FROM identities`

	getIdentityByPuuid = selectIdentityColumns + ` WHERE puuid = ?`

	getIdentityByRiotID = selectIdentityColumns + ` WHERE LOWER(game_name) = LOWER(?) AND LOWER(tag_line) = LOWER(?) ORDER BY updated_at DESC LIMIT 1`

	listIdentitiesAfter = selectIdentityColumns + ` WHERE id > ? ORDER BY id LIMIT ?`

	// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
	upsertMatchStub = `
INSERT INTO matches (id, external_id, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET external_id = excluded.external_id
RETURNING id, external_id, detail IS NOT NULL`

	insertIdentityMatch = `
INSERT INTO identity_matches (id, identity_id, match_id, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (identity_id, match_id) DO NOTHING`

	setMatchDetailIfNull = `
UPDATE matches SET detail = ?, game_start_at = ?, updated_at = ?
WHERE external_id = ? AND detail IS NULL`

	selectMatchColumns = `SELECT m.id, m.external_id, m.detail, m.game_start_at, m.created_at, m.updated_at FROM matches m`

	getMatchByExternalID = selectMatchColumns + ` WHERE m.external_id = ?`

	listMatchesForIdentity = selectMatchColumns + `
JOIN identity_matches im ON im.match_id = m.id
WHERE im.identity_id = ?
ORDER BY m.game_start_at DESC NULLS LAST, m.external_id DESC
LIMIT ?`

	// the placeholder list is expanded per call
	listMissingDetailPrefix = `SELECT external_id FROM matches WHERE detail IS NULL AND external_id IN (`
)
