package repo

import (
	"context"

	"coursehub/internal/domain"
)

const profileColumns = `id,email,full_name,role,bio,avatar,created_at,updated_at`

func (r Repo) InsertProfile(ctx context.Context, q Querier, p domain.Profile) error {
	_, err := exec(ctx, r.q(q), `INSERT INTO profiles(`+profileColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Email, p.FullName, p.Role, nullablePtr(p.Bio), nullablePtr(p.Avatar), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, q Querier, id string) (domain.Profile, error) {
	var p domain.Profile
	err := get(ctx, r.q(q), &p, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id)
	return p, err
}

// UpdateProfile replaces the mutable display fields. Identity (id, email, role)
// never changes.
func (r Repo) UpdateProfile(ctx context.Context, q Querier, p domain.Profile) error {
	return execOne(ctx, r.q(q), `UPDATE profiles SET full_name=?, bio=?, avatar=?, updated_at=? WHERE id=?`,
		p.FullName, nullablePtr(p.Bio), nullablePtr(p.Avatar), p.UpdatedAt, p.ID)
}

func (r Repo) ProfileExists(ctx context.Context, q Querier, id string) (bool, error) {
	var n int
	err := get(ctx, r.q(q), &n, `SELECT COUNT(1) FROM profiles WHERE id=?`, id)
	return n > 0, err
}
