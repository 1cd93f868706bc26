package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"league-tracker/internal/database"
	"league-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type IdentityRepository struct {
	db     *database.DB
	logger zerolog.Logger
}

func NewIdentityRepository(db *database.DB, logger zerolog.Logger) *IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the identity or refreshes its profile attributes, keyed on
// puuid, and returns the stored row either way.
func (r *IdentityRepository) Upsert(ctx context.Context, profile domain.IdentityProfile) (*domain.Identity, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nanoid: %w", err)
	}
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, r.db.Rebind(upsertIdentity),
		id,
		profile.Puuid,
		profile.GameName,
		profile.TagLine,
		nullableInt(profile.ProfileIconID),
		nullableInt(profile.SummonerLevel),
		now,
		now,
	)

	identity, err := scanIdentity(row)
	if err != nil {
		return nil, r.writeError("upsert identity", err)
	}
	return identity, nil
}

func (r *IdentityRepository) GetByPuuid(ctx context.Context, puuid string) (*domain.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, r.db.Rebind(getIdentityByPuuid), puuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

func (r *IdentityRepository) GetByRiotID(ctx context.Context, riotID domain.RiotID) (*domain.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, r.db.Rebind(getIdentityByRiotID), riotID.GameName, riotID.TagLine))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// ListAfter pages through identities by id; pass "" to start.
func (r *IdentityRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Identity, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(listIdentitiesAfter), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []domain.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

func (r *IdentityRepository) writeError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		r.logger.Error().Err(err).Str("op", op).Msg("uniqueness violation on atomic upsert path")
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrPersistenceConflict, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var (
		identity domain.Identity
		icon     sql.NullInt64
		level    sql.NullInt64
	)
	if err := row.Scan(
		&identity.ID,
		&identity.Puuid,
		&identity.GameName,
		&identity.TagLine,
		&icon,
		&level,
		timestamp{&identity.CreatedAt},
		timestamp{&identity.UpdatedAt},
	); err != nil {
		return nil, err
	}
	identity.ProfileIconID = intPtr(icon)
	identity.SummonerLevel = intPtr(level)
	return &identity, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
