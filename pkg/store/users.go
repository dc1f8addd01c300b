package store

import (
	"context"
	"errors"
	"strings"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

// UpsertUser records a user on first authentication and refreshes
// provider-owned fields (email, avatar) on later sign-ins. Profile edits
// (username, bio) are never clobbered by a sign-in.
func (s *Store) UpsertUser(ctx context.Context, userID, displayName, email, avatarURL string) (*model.User, error) {
	if userID == "" {
		return nil, errs.InvalidArg("user id is required")
	}

	now := s.now().UTC()
	existing, err := s.GetUser(ctx, userID)
	switch {
	case err == nil:
		existing.Email = email
		if avatarURL != "" {
			existing.AvatarURL = avatarURL
		}
		existing.UpdatedAt = now
		if err := s.writeUser(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errs.CodeOf(err) == errs.CodeNotFound:
		username := strings.TrimSpace(displayName)
		if username == "" {
			username = userID
		}
		user := &model.User{
			UserID:    userID,
			Username:  username,
			AvatarURL: avatarURL,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.writeUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	default:
		return nil, err
	}
}

func (s *Store) writeUser(ctx context.Context, u *model.User) error {
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO users (user_id, username, avatar_url, bio, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.UserID, u.Username, u.AvatarURL, u.Bio, u.Email, u.CreatedAt, u.UpdatedAt)
	if u.Email != "" {
		b.Query(`INSERT INTO users_by_email (email, user_id) VALUES (?, ?)`, u.Email, u.UserID)
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return errs.StoreUnavailable("write user", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.session.Query(`SELECT user_id, username, avatar_url, bio, email, created_at, updated_at FROM users WHERE user_id = ?`, userID).
		WithContext(ctx).
		Scan(&u.UserID, &u.Username, &u.AvatarURL, &u.Bio, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, errs.StoreUnavailable("get user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var userID string
	err := s.session.Query(`SELECT user_id FROM users_by_email WHERE email = ?`, email).
		WithContext(ctx).
		Scan(&userID)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, errs.StoreUnavailable("lookup user by email", err)
	}
	return s.GetUser(ctx, userID)
}

// UpdateProfile applies a profile edit. Empty fields are left untouched.
func (s *Store) UpdateProfile(ctx context.Context, userID, username, bio, avatarURL string) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if username != "" {
		user.Username = username
	}
	if bio != "" {
		user.Bio = bio
	}
	if avatarURL != "" {
		user.AvatarURL = avatarURL
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.writeUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
