package model

import "time"

// StoryRetention is how long a story image stays visible. A post is live
// while its newest image is inside the window.
const StoryRetention = 24 * time.Hour

type StoryImage struct {
	URL     string    `json:"url"`
	AddedAt time.Time `json:"added_at"`
}

// StoryPost is a user's single active ephemeral post. Publishing while a post
// is active appends an image; publishing after expiry starts a new post.
type StoryPost struct {
	StoryID   string       `json:"story_id"`
	OwnerID   string       `json:"owner_id"`
	Images    []StoryImage `json:"images"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewestImage returns the most recently added image.
func (s *StoryPost) NewestImage() (StoryImage, bool) {
	if s == nil || len(s.Images) == 0 {
		return StoryImage{}, false
	}
	newest := s.Images[0]
	for _, img := range s.Images[1:] {
		if img.AddedAt.After(newest.AddedAt) {
			newest = img
		}
	}
	return newest, true
}

// Active reports whether the post is still visible at now. Expiry is judged
// by the newest image: once it leaves the retention window the whole post is
// hidden, even if older images exist.
func (s *StoryPost) Active(now time.Time) bool {
	newest, ok := s.NewestImage()
	if !ok {
		return false
	}
	return now.Sub(newest.AddedAt) < StoryRetention
}
