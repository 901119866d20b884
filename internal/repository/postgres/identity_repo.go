package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Crabiner/internal/domain/identity"
	"github.com/jackc/pgx/v5"
)

var _ identity.Repo = (*IdentityRepo)(nil)

type IdentityRepo struct {
	db *DB
}

func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

const qIdentityByID = `
SELECT id, email, email_verified, COALESCE(display_name, ''), COALESCE(avatar_url, ''), created_at, updated_at
FROM users
WHERE id = $1;`

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u identity.Identity
	err := r.db.execQueryer(ctx).QueryRow(ctx, qIdentityByID, id).
		Scan(&u.ID, &u.Email, &u.EmailVerified, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("identity by id: %w", err)
	}
	return &u, nil
}
