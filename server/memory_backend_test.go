package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Luismorlan/familyfeed/backend"
	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
)

// memoryBackend is a feed.Backend over maps, resolving the user like
// GormBackend does.
type memoryBackend struct {
	mu       sync.Mutex
	posts    map[string]*model.Post
	links    map[string][]string
	profiles map[string]*model.UserProfile
	limits   map[string]int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		posts:    make(map[string]*model.Post),
		links:    make(map[string][]string),
		profiles: make(map[string]*model.UserProfile),
		limits:   make(map[string]int),
	}
}

func (b *memoryBackend) seed(familyID string, post *model.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts[post.Id] = post
	b.links[familyID] = append(b.links[familyID], post.Id)
}

func (b *memoryBackend) post(id string) (model.Post, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.posts[id]
	if !ok {
		return model.Post{}, false
	}
	return *p, true
}

func (b *memoryBackend) GetFamilySettings(ctx context.Context, familyID string) (*model.FamilySettings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit, ok := b.limits[familyID]
	if !ok {
		return nil, errors.Wrap(feed.ErrNotFound, familyID)
	}
	return &model.FamilySettings{FamilyID: familyID, SlideshowPhotoLimit: limit}, nil
}

func (b *memoryBackend) ListPostsWithReactions(ctx context.Context, familyID string) ([]*model.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*model.Post
	for _, id := range b.links[familyID] {
		if p, ok := b.posts[id]; ok {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (b *memoryBackend) DeletePost(ctx context.Context, postID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.posts, postID)
	return nil
}

func (b *memoryBackend) InsertPost(ctx context.Context, post *model.Post) (*model.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts[post.Id] = post
	return post, nil
}

func (b *memoryBackend) InsertPostFamilyLinks(ctx context.Context, links []model.PostFamilyLink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range links {
		b.links[l.FamilyID] = append(b.links[l.FamilyID], l.PostID)
	}
	return nil
}

func (b *memoryBackend) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[userID]
	if !ok {
		return nil, errors.Wrap(feed.ErrNotFound, userID)
	}
	c := *p
	return &c, nil
}

func (b *memoryBackend) UpdateUserStreak(ctx context.Context, userID string, streakCount int, lastPostDate model.Date) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[userID]
	if !ok {
		return errors.Wrap(feed.ErrNotFound, userID)
	}
	p.StreakCount = streakCount
	p.LastPostDate = &lastPostDate
	return nil
}

func (b *memoryBackend) UpdatePostFavorite(ctx context.Context, postID string, isFavorite bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.posts[postID]
	if !ok {
		return errors.Wrap(feed.ErrNotFound, postID)
	}
	p.IsFavorite = isFavorite
	return nil
}

func (b *memoryBackend) CurrentUser(ctx context.Context) (model.UserIdentity, error) {
	userID, ok := backend.UserFromContext(ctx)
	if !ok {
		return model.UserIdentity{}, feed.ErrUnauthenticated
	}
	return model.UserIdentity{Id: userID}, nil
}
