package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"coursehub/internal/domain"
	"coursehub/internal/engine/auth"
	"coursehub/internal/events"
	"coursehub/internal/repo"
)

type CreateProfileInput struct {
	Email    string  `json:"email" validate:"required,email,max=320"`
	FullName string  `json:"full_name" validate:"required,max=200"`
	Role     string  `json:"role" validate:"required,oneof=student instructor"`
	Bio      *string `json:"bio" validate:"omitempty,max=2000"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
}

type UpdateProfileInput struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	Bio      *string `json:"bio" validate:"omitempty,max=2000"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
}

// CreateProfile signs the actor up. The profile id is the actor id.
func (e Engine) CreateProfile(ctx context.Context, actor domain.Actor, in CreateProfileInput) (domain.Profile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateInput(in); err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	err := e.withTx(ctx, "CreateProfile", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := e.enforce(actor, auth.EntityProfile, auth.OpCreate, auth.Target{ProfileID: actor.ID}); err != nil {
			return err
		}
		now := e.stamp()
		p = domain.Profile{
			ID:        actor.ID,
			Email:     in.Email,
			FullName:  in.FullName,
			Role:      in.Role,
			Bio:       in.Bio,
			Avatar:    in.Avatar,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertProfile(ctx, tx, p); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return with(ErrDuplicateProfile, nil, err)
			}
			return err
		}
		return e.emit(ctx, tx, events.ProfileCreated, "profile", p.ID, actor.ID, events.EventPayload{"role": p.Role})
	})
	return p, err
}

func (e Engine) GetProfile(ctx context.Context, actor domain.Actor, id string) (domain.Profile, error) {
	var p domain.Profile
	err := e.withTx(ctx, "GetProfile", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		if !actor.Authenticated() {
			return ErrUnauthorized
		}
		t, err := e.Resolver.Profile(ctx, tx, id)
		if errors.Is(err, auth.ErrUnresolved) {
			return with(ErrNotFound, map[string]any{"profile_id": id}, err)
		}
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityProfile, auth.OpRead, t); err != nil {
			return err
		}
		p = *t.Profile
		return nil
	})
	return p, err
}

func (e Engine) UpdateProfile(ctx context.Context, actor domain.Actor, id string, in UpdateProfileInput) (domain.Profile, error) {
	if err := validateInput(in); err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	err := e.withTx(ctx, "UpdateProfile", actor, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := e.Resolver.Profile(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := e.enforce(actor, auth.EntityProfile, auth.OpUpdate, t); err != nil {
			return err
		}
		p = *t.Profile
		var changed []string
		if in.FullName != nil {
			p.FullName = strings.TrimSpace(*in.FullName)
			changed = append(changed, "full_name")
		}
		if in.Bio != nil {
			p.Bio = in.Bio
			changed = append(changed, "bio")
		}
		if in.Avatar != nil {
			p.Avatar = in.Avatar
			changed = append(changed, "avatar")
		}
		if len(changed) == 0 {
			return nil
		}
		p.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateProfile(ctx, tx, p); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ProfileUpdated, "profile", p.ID, actor.ID, events.EventPayload{"fields": changed})
	})
	return p, err
}
