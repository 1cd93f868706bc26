package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/database"
	"league-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type MatchRepository struct {
	db     *database.DB
	logger zerolog.Logger
}

func NewMatchRepository(db *database.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertStubsAndLinks makes sure every external id has a match row and a
// link to the identity. Ids are written in sorted order so that concurrent
// callers with overlapping sets always lock rows in the same order.
func (r *MatchRepository) UpsertStubsAndLinks(ctx context.Context, identityID string, externalIDs []string) ([]domain.MatchStub, error) {
	ids := slices.Clone(externalIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	stubs := make([]domain.MatchStub, 0, len(ids))
	for start := 0; start < len(ids); start += constants.DBBatchSize {
		end := min(start+constants.DBBatchSize, len(ids))
		batch, err := r.upsertBatch(ctx, identityID, ids[start:end])
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, batch...)
	}

	r.logger.Debug().
		Str("identity_id", identityID).
		Int("count", len(stubs)).
		Msg("match stubs upserted")

	return stubs, nil
}

func (r *MatchRepository) upsertBatch(ctx context.Context, identityID string, externalIDs []string) ([]domain.MatchStub, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stubQuery := r.db.Rebind(upsertMatchStub)
	linkQuery := r.db.Rebind(insertIdentityMatch)
	now := time.Now().UTC()

	stubs := make([]domain.MatchStub, 0, len(externalIDs))
	for _, externalID := range externalIDs {
		stubID, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}

		var stub domain.MatchStub
		if err := tx.QueryRowContext(ctx, stubQuery, stubID, externalID, now, now).
			Scan(&stub.ID, &stub.ExternalID, &stub.HasDetail); err != nil {
			return nil, r.writeError("upsert match stub", err)
		}

		linkID, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		if _, err := tx.ExecContext(ctx, linkQuery, linkID, identityID, stub.ID, now); err != nil {
			return nil, r.writeError("link match", err)
		}

		stubs = append(stubs, stub)
	}

	if err := tx.Commit(); err != nil {
		return nil, r.writeError("commit match stubs", err)
	}
	return stubs, nil
}

// UpsertStub returns the match row for externalID, creating it if needed.
func (r *MatchRepository) UpsertStub(ctx context.Context, externalID string) (domain.MatchStub, error) {
	id, err := gonanoid.New()
	if err != nil {
		return domain.MatchStub{}, fmt.Errorf("failed to generate nanoid: %w", err)
	}
	now := time.Now().UTC()

	var stub domain.MatchStub
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(upsertMatchStub), id, externalID, now, now).
		Scan(&stub.ID, &stub.ExternalID, &stub.HasDetail); err != nil {
		return domain.MatchStub{}, r.writeError("upsert match stub", err)
	}
	return stub, nil
}

// SetDetailIfNull writes detail only while the stored detail is still null.
// It reports whether this call was the one that wrote it.
func (r *MatchRepository) SetDetailIfNull(ctx context.Context, externalID string, detail []byte, gameStartAt *time.Time) (bool, error) {
	if detail == nil {
		return false, fmt.Errorf("refusing to write empty detail for match %s", externalID)
	}

	var start sql.NullInt64
	if gameStartAt != nil {
		start = sql.NullInt64{Int64: gameStartAt.UnixMilli(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(setMatchDetailIfNull), string(detail), start, time.Now().UTC(), externalID)
	if err != nil {
		return false, fmt.Errorf("failed to set match detail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// ListMissingDetail filters externalIDs down to the ones stored without
// detail, keeping the caller's order.
func (r *MatchRepository) ListMissingDetail(ctx context.Context, externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	missing := make(map[string]struct{}, len(externalIDs))
	for start := 0; start < len(externalIDs); start += constants.DBBatchSize {
		end := min(start+constants.DBBatchSize, len(externalIDs))
		chunk := externalIDs[start:end]

		query := listMissingDetailPrefix + strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + ")"
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list matches missing detail: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan match id: %w", err)
			}
			missing[id] = struct{}{}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, len(missing))
	for _, id := range externalIDs {
		if _, ok := missing[id]; ok {
			result = append(result, id)
			delete(missing, id)
		}
	}
	return result, nil
}

func (r *MatchRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Match, error) {
	match, err := scanMatch(r.db.QueryRowContext(ctx, r.db.Rebind(getMatchByExternalID), externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

// ListForIdentity returns linked matches, newest first, undated last.
func (r *MatchRepository) ListForIdentity(ctx context.Context, identityID string, limit int) ([]domain.Match, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(listMatchesForIdentity), identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}

func (r *MatchRepository) writeError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		r.logger.Error().Err(err).Str("op", op).Msg("uniqueness violation on atomic upsert path")
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrPersistenceConflict, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var (
		match  domain.Match
		detail sql.NullString
		start  sql.NullInt64
	)
	if err := row.Scan(&match.ID, &match.ExternalID, &detail, &start, timestamp{&match.CreatedAt}, timestamp{&match.UpdatedAt}); err != nil {
		return nil, err
	}
	if detail.Valid {
		match.Detail = []byte(detail.String)
	}
	if start.Valid {
		t := time.UnixMilli(start.Int64).UTC()
		match.GameStartAt = &t
	}
	return &match, nil
}
