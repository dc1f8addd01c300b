package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/mahaj/chat-sync/pkg/errs"
	"github.com/mahaj/chat-sync/pkg/model"
)

// StoryFor loads a user's story post with all its images, without applying
// the expiry filter. Callers decide visibility with post.Active.
func (s *Store) StoryFor(ctx context.Context, ownerID string) (*model.StoryPost, error) {
	var storyID string
	var updatedAt time.Time
	err := s.session.Query(`SELECT story_id, updated_at FROM stories WHERE owner_id = ?`, ownerID).
		WithContext(ctx).
		Scan(&storyID, &updatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errs.NotFound("no story for user")
	}
	if err != nil {
		return nil, errs.StoreUnavailable("get story", err)
	}

	post := &model.StoryPost{StoryID: storyID, OwnerID: ownerID, UpdatedAt: updatedAt}

	iter := s.session.Query(`SELECT added_at, url FROM story_images WHERE story_id = ?`, storyID).
		WithContext(ctx).
		Iter()
	var img model.StoryImage
	for iter.Scan(&img.AddedAt, &img.URL) {
		post.Images = append(post.Images, img)
	}
	if err := iter.Close(); err != nil {
		return nil, errs.StoreUnavailable("get story images", err)
	}
	return post, nil
}

// PublishStory appends an image to the owner's active post, or starts a new
// post when none is active. Retrying a publish that already committed just
// appends the same image again to the same post, which readers tolerate, so
// the operation is safe to retry.
func (s *Store) PublishStory(ctx context.Context, ownerID, imageURL string) (*model.StoryPost, error) {
	if ownerID == "" {
		return nil, errs.InvalidArg("owner id is required")
	}
	if imageURL == "" {
		return nil, errs.InvalidArg("image url is required")
	}

	now := s.now().UTC()

	post, err := s.StoryFor(ctx, ownerID)
	switch {
	case err == nil && post.Active(now):
		// Append to the active post.
	case err != nil && errs.CodeOf(err) != errs.CodeNotFound:
		return nil, err
	default:
		post = &model.StoryPost{StoryID: uuid.NewString(), OwnerID: ownerID}
	}

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO stories (owner_id, story_id, updated_at) VALUES (?, ?, ?)`, ownerID, post.StoryID, now)
	b.Query(`INSERT INTO story_images (story_id, added_at, url) VALUES (?, ?, ?)`, post.StoryID, now, imageURL)
	if err := s.session.ExecuteBatch(b); err != nil {
		return nil, errs.StoreUnavailable("publish story", err)
	}

	post.Images = append(post.Images, model.StoryImage{URL: imageURL, AddedAt: now})
	post.UpdatedAt = now
	return post, nil
}

// ListVisibleStories returns the active posts of the viewer and everyone
// sharing a conversation with the viewer. Expiry is evaluated lazily here;
// no sweeper is required for correctness.
func (s *Store) ListVisibleStories(ctx context.Context, viewerID string) ([]model.StoryPost, error) {
	if viewerID == "" {
		return nil, errs.InvalidArg("viewer id is required")
	}

	partners, err := s.Partners(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	owners := append(partners, viewerID)

	now := s.now().UTC()
	out := make([]model.StoryPost, 0, len(owners))
	for _, owner := range owners {
		post, err := s.StoryFor(ctx, owner)
		if err != nil {
			if errs.CodeOf(err) == errs.CodeNotFound {
				continue
			}
			return nil, err
		}
		if !post.Active(now) {
			continue
		}
		out = append(out, *post)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// PurgeExpiredStories deletes posts whose newest image left the retention
// window. Purely space reclaim; ListVisibleStories already hides them.
func (s *Store) PurgeExpiredStories(ctx context.Context, now time.Time) (int, error) {
	iter := s.session.Query(`SELECT owner_id, story_id FROM stories`).WithContext(ctx).Iter()
	type row struct{ owner, story string }
	var rows []row
	var r row
	for iter.Scan(&r.owner, &r.story) {
		rows = append(rows, r)
	}
	if err := iter.Close(); err != nil {
		return 0, errs.StoreUnavailable("scan stories", err)
	}

	purged := 0
	for _, r := range rows {
		post, err := s.StoryFor(ctx, r.owner)
		if err != nil {
			if errs.CodeOf(err) == errs.CodeNotFound {
				continue
			}
			return purged, err
		}
		if post.StoryID != r.story || post.Active(now) {
			continue
		}
		if err := s.session.Query(`DELETE FROM story_images WHERE story_id = ?`, r.story).WithContext(ctx).Exec(); err != nil {
			return purged, errs.StoreUnavailable("purge story images", err)
		}
		// Conditional delete so a post republished since the scan survives.
		prev := map[string]interface{}{}
		if _, err := s.session.Query(`DELETE FROM stories WHERE owner_id = ? IF story_id = ?`, r.owner, r.story).
			WithContext(ctx).
			MapScanCAS(prev); err != nil {
			return purged, errs.StoreUnavailable("purge story", err)
		}
		purged++
	}
	return purged, nil
}
