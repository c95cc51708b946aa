package feed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Luismorlan/familyfeed/model"
)

type streakUpdate struct {
	count int
	date  model.Date
}

// fakeBackend keeps everything in memory. gates, when set for a family,
// block ListPostsWithReactions until a value is received or the gate closes.
type fakeBackend struct {
	mu sync.Mutex

	user        string
	settings    map[string]*model.FamilySettings
	settingsErr error
	posts       map[string][]*model.Post
	listErr     error
	listCalls   map[string]int
	gates       map[string]chan struct{}
	deleted     []string
	deleteErr   map[string]error
	profiles    map[string]*model.UserProfile
	inserted    []*model.Post
	links       []model.PostFamilyLink
	streaks     map[string]streakUpdate
	favorites   map[string]bool

	// favoriteDelay slows UpdatePostFavorite down before it takes the lock.
	favoriteDelay time.Duration

	insertErr   error
	linksErr    error
	streakErr   error
	favoriteErr error
}

func newFakeBackend(user string) *fakeBackend {
	return &fakeBackend{
		user:      user,
		settings:  make(map[string]*model.FamilySettings),
		posts:     make(map[string][]*model.Post),
		listCalls: make(map[string]int),
		gates:     make(map[string]chan struct{}),
		deleteErr: make(map[string]error),
		profiles:  make(map[string]*model.UserProfile),
		streaks:   make(map[string]streakUpdate),
		favorites: make(map[string]bool),
	}
}

func (b *fakeBackend) calls(familyID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls[familyID]
}

func (b *fakeBackend) deletedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.deleted...)
}

func (b *fakeBackend) GetFamilySettings(ctx context.Context, familyID string) (*model.FamilySettings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settingsErr != nil {
		return nil, b.settingsErr
	}
	s, ok := b.settings[familyID]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, "settings")
	}
	return s, nil
}

func (b *fakeBackend) ListPostsWithReactions(ctx context.Context, familyID string) ([]*model.Post, error) {
	b.mu.Lock()
	b.listCalls[familyID]++
	gate := b.gates[familyID]
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]*model.Post, 0, len(b.posts[familyID]))
	for _, p := range b.posts[familyID] {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (b *fakeBackend) DeletePost(ctx context.Context, postID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteErr[postID]; err != nil {
		return err
	}
	b.deleted = append(b.deleted, postID)
	for familyID, posts := range b.posts {
		kept := posts[:0:0]
		for _, p := range posts {
			if p.Id != postID {
				kept = append(kept, p)
			}
		}
		b.posts[familyID] = kept
	}
	return nil
}

func (b *fakeBackend) InsertPost(ctx context.Context, post *model.Post) (*model.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	b.inserted = append(b.inserted, post)
	return post, nil
}

func (b *fakeBackend) InsertPostFamilyLinks(ctx context.Context, links []model.PostFamilyLink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.linksErr != nil {
		return b.linksErr
	}
	b.links = append(b.links, links...)
	return nil
}

func (b *fakeBackend) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (b *fakeBackend) UpdateUserStreak(ctx context.Context, userID string, streakCount int, lastPostDate model.Date) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streakErr != nil {
		return b.streakErr
	}
	b.streaks[userID] = streakUpdate{count: streakCount, date: lastPostDate}
	return nil
}

func (b *fakeBackend) UpdatePostFavorite(ctx context.Context, postID string, isFavorite bool) error {
	b.mu.Lock()
	delay := b.favoriteDelay
	b.mu.Unlock()
	time.Sleep(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.favoriteErr != nil {
		return b.favoriteErr
	}
	b.favorites[postID] = isFavorite
	for _, posts := range b.posts {
		for _, p := range posts {
			if p.Id == postID {
				p.IsFavorite = isFavorite
			}
		}
	}
	return nil
}

func (b *fakeBackend) CurrentUser(ctx context.Context) (model.UserIdentity, error) {
	if b.user == "" {
		return model.UserIdentity{}, ErrUnauthenticated
	}
	return model.UserIdentity{Id: b.user}, nil
}

// fakeTxBackend records transactions and drops the writes of a failed one.
type fakeTxBackend struct {
	*fakeBackend
	transactions int
	rolledBack   int
}

func (b *fakeTxBackend) WithinTransaction(ctx context.Context, fn func(tx Backend) error) error {
	b.mu.Lock()
	b.transactions++
	inserted, links := len(b.inserted), len(b.links)
	b.mu.Unlock()

	err := fn(b.fakeBackend)
	if err != nil {
		b.mu.Lock()
		b.inserted = b.inserted[:inserted]
		b.links = b.links[:links]
		b.rolledBack++
		b.mu.Unlock()
	}
	return err
}

type fakeSubscription struct {
	ch   chan struct{}
	once sync.Once
}

func (s *fakeSubscription) C() <-chan struct{} { return s.ch }

func (s *fakeSubscription) Unsubscribe() { s.once.Do(func() { close(s.ch) }) }

type fakeNotifier struct {
	mu   sync.Mutex
	subs map[string][]*fakeSubscription
	err  error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{subs: make(map[string][]*fakeSubscription)}
}

func (n *fakeNotifier) Subscribe(ctx context.Context, familyID string) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	sub := &fakeSubscription{ch: make(chan struct{}, 1)}
	n.subs[familyID] = append(n.subs[familyID], sub)
	return sub, nil
}

func (n *fakeNotifier) latest(familyID string) *fakeSubscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs := n.subs[familyID]
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []HydrationReport
}

func (r *fakeReporter) ReportHydration(ctx context.Context, report HydrationReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *fakeReporter) all() []HydrationReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HydrationReport{}, r.reports...)
}

type fakePublisher struct {
	mu       sync.Mutex
	families []string
}

func (p *fakePublisher) NotifyFamilyChanged(ctx context.Context, familyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.families = append(p.families, familyID)
	return nil
}
