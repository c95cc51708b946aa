package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusErrored:
		return "errored"
	}
	return "unknown"
}

// State is what the presentation layer renders. A published State is never
// mutated afterwards, the next one replaces it.
type State struct {
	FamilyID string
	Status   Status
	// Newest first. While loading or errored these are the posts of the last
	// successful hydration of the same family, if any.
	Posts   []*PostView
	Loading bool
	Error   error
	// Incremented on every publish.
	Version uint64
}

type SynchronizerConfig struct {
	// Name is only used in logs.
	Name string
	// Limit used when a family has no settings row or a non-positive one.
	DefaultLimit int
}

// Synchronizer owns the feed state of one family at a time. All triggers
// (load, refresh, change notifications, mutations) funnel into at most one
// in-flight hydration per family plus at most one pending follow-up.
type Synchronizer struct {
	Config SynchronizerConfig

	ctx      context.Context
	backend  Backend
	notifier Notifier
	reporter Reporter

	mu    sync.RWMutex
	state State
	// epoch increases on every family switch and tags in-flight hydrations.
	epoch uint64
	// busy holds families with a running hydration loop.
	busy    map[string]bool
	pending bool
	sub     Subscription
	closed  bool

	// favoriteMu serializes favorite toggles from lookup to backend write.
	favoriteMu sync.Mutex

	watchers map[string]chan State
}

// NewSynchronizer creates an idle synchronizer. ctx bounds every hydration;
// it also carries the acting user for backends that read identity from it.
// notifier and reporter may be nil.
func NewSynchronizer(ctx context.Context, config SynchronizerConfig, backend Backend, notifier Notifier, reporter Reporter) *Synchronizer {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultSlideshowPhotoLimit
	}
	return &Synchronizer{
		Config:   config,
		ctx:      ctx,
		backend:  backend,
		notifier: notifier,
		reporter: reporter,
		busy:     make(map[string]bool),
		watchers: make(map[string]chan State),
	}
}

// State returns the latest published state.
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FamilyID returns the currently selected family, empty when idle.
func (s *Synchronizer) FamilyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FamilyID
}

// Load selects familyID and starts hydrating it. Switching away from another
// family drops its subscription first and discards its in-flight result.
// Loading the already selected family is a refresh.
func (s *Synchronizer) Load(familyID string) error {
	if familyID == "" {
		return preconditionFailed("empty family id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return preconditionFailed("synchronizer is closed")
	}
	if s.state.Status != StatusIdle && s.state.FamilyID == familyID {
		return s.refreshLocked()
	}

	s.epoch++
	s.pending = false
	s.unsubscribeLocked()
	s.publishLocked(State{FamilyID: familyID, Status: StatusLoading, Loading: true})

	if err := s.subscribeLocked(familyID); err != nil {
		s.publishLocked(State{FamilyID: familyID, Status: StatusErrored, Error: err})
		return err
	}
	s.requestHydrationLocked()
	return nil
}

// Refresh re-hydrates the selected family. Valid from Ready, Errored and
// Loading (coalesced).
func (s *Synchronizer) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Synchronizer) refreshLocked() error {
	if s.state.Status == StatusIdle {
		return preconditionFailed("refresh before load")
	}
	if s.sub == nil {
		// A previous subscribe failed, retry before hydrating.
		if err := s.subscribeLocked(s.state.FamilyID); err != nil {
			s.publishLocked(State{FamilyID: s.state.FamilyID, Status: StatusErrored, Posts: s.state.Posts, Error: err})
			return err
		}
	}
	if s.state.Status != StatusLoading {
		s.publishLocked(State{FamilyID: s.state.FamilyID, Status: StatusLoading, Posts: s.state.Posts, Loading: true})
	}
	s.requestHydrationLocked()
	return nil
}

// Notify is the change-notification entry point. familyID scopes the change,
// empty means it may concern any family. Notifications for other families
// and notifications while Idle or Errored are ignored.
func (s *Synchronizer) Notify(familyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if familyID != "" && familyID != s.state.FamilyID {
		return
	}
	switch s.state.Status {
	case StatusReady:
		s.publishLocked(State{FamilyID: s.state.FamilyID, Status: StatusLoading, Posts: s.state.Posts, Loading: true})
		s.requestHydrationLocked()
	case StatusLoading:
		s.requestHydrationLocked()
	}
}

// Close drops the subscription and every watcher and goes back to Idle for
// good, later triggers are ignored. In-flight hydrations finish but their
// results are discarded.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.epoch++
	s.pending = false
	s.unsubscribeLocked()
	s.state = State{Status: StatusIdle, Version: s.state.Version + 1}
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

// Watch returns a channel receiving the current state and then every
// published state. The channel holds only the latest state, a slow reader
// skips intermediate ones. It is closed when ctx is done or on Close.
func (s *Synchronizer) Watch(ctx context.Context) <-chan State {
	id := "state_watcher_" + uuid.New().String()
	ch := make(chan State, 1)

	s.mu.Lock()
	ch <- s.state
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch
	}
	s.watchers[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[id]; ok {
			close(ch)
			delete(s.watchers, id)
		}
	}()
	return ch
}

func (s *Synchronizer) publishLocked(st State) {
	st.Version = s.state.Version + 1
	st.Loading = st.Status == StatusLoading
	s.state = st
	for _, ch := range s.watchers {
		sendLatest(ch, st)
	}
}

func sendLatest(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	// Drop the unread state, then we are the only sender.
	select {
	case <-ch:
	default:
	}
	ch <- st
}

func (s *Synchronizer) subscribeLocked(familyID string) error {
	if s.notifier == nil {
		return nil
	}
	sub, err := s.notifier.Subscribe(s.ctx, familyID)
	if err != nil {
		return classify(err, "subscribe to family "+familyID)
	}
	s.sub = sub
	go func() {
		for range sub.C() {
			s.Notify(familyID)
		}
	}()
	return nil
}

func (s *Synchronizer) unsubscribeLocked() {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// requestHydrationLocked starts a hydration loop for the selected family or,
// if one is running, marks a single follow-up.
func (s *Synchronizer) requestHydrationLocked() {
	familyID := s.state.FamilyID
	if s.busy[familyID] {
		s.pending = true
		return
	}
	s.busy[familyID] = true
	go s.hydrationLoop(familyID)
}

func (s *Synchronizer) hydrationLoop(familyID string) {
	for {
		s.mu.Lock()
		if s.state.FamilyID != familyID {
			delete(s.busy, familyID)
			s.mu.Unlock()
			return
		}
		epoch := s.epoch
		s.pending = false
		s.mu.Unlock()

		views, report, err := s.hydrate(s.ctx, familyID)

		s.mu.Lock()
		current := s.state.FamilyID == familyID && s.epoch == epoch
		switch {
		case !current:
			report.Stale = true
			Logger.Log.Debugf("%s: discard stale hydration of family %s", s.Config.Name, familyID)
		case err != nil:
			Logger.Log.Warnf("%s: hydration of family %s failed: %s", s.Config.Name, familyID, err)
			s.publishLocked(State{FamilyID: familyID, Status: StatusErrored, Posts: s.state.Posts, Error: err})
		case s.pending:
			// A follow-up is due, keep the loading state but show the new posts.
			s.publishLocked(State{FamilyID: familyID, Status: StatusLoading, Posts: views})
		default:
			s.publishLocked(State{FamilyID: familyID, Status: StatusReady, Posts: views})
		}
		again := s.state.FamilyID == familyID && s.pending
		if !again {
			delete(s.busy, familyID)
		}
		s.mu.Unlock()

		if s.reporter != nil {
			s.reporter.ReportHydration(s.ctx, report)
		}
		if !again {
			return
		}
	}
}

// hydrate runs fetch, aggregate, enforce, evict for one family. Nothing is
// published here.
func (s *Synchronizer) hydrate(ctx context.Context, familyID string) ([]*PostView, HydrationReport, error) {
	report := HydrationReport{FamilyID: familyID}
	fail := func(err error) ([]*PostView, HydrationReport, error) {
		report.Failed = true
		return nil, report, err
	}

	viewer, err := s.backend.CurrentUser(ctx)
	if err != nil {
		return fail(classify(err, "resolve current user"))
	}
	if viewer.Id == "" {
		return fail(errors.WithMessage(ErrUnauthenticated, "resolve current user"))
	}

	limit, err := s.familyLimit(ctx, familyID)
	if err != nil {
		return fail(err)
	}
	report.Limit = limit

	posts, err := s.backend.ListPostsWithReactions(ctx, familyID)
	if err != nil {
		return fail(classify(err, "list posts of family "+familyID))
	}

	decision := EnforceRetention(BuildPostViews(posts, viewer.Id), limit)
	if decision.OverCapacity {
		Logger.Log.Warnf("%s: family %s has more favorites than its limit %d, keeping all %d posts",
			s.Config.Name, familyID, limit, len(decision.Retained))
	}
	report.OverCapacity = decision.OverCapacity
	report.Evicted = len(decision.Removed)
	report.EvictionFailures = s.evict(ctx, familyID, decision.Removed)
	report.Retained = len(decision.Retained)
	return decision.Retained, report, nil
}

func (s *Synchronizer) familyLimit(ctx context.Context, familyID string) (int, error) {
	settings, err := s.backend.GetFamilySettings(ctx, familyID)
	if errors.Is(err, ErrNotFound) {
		return s.Config.DefaultLimit, nil
	}
	if err != nil {
		return 0, classify(err, "get settings of family "+familyID)
	}
	if settings == nil || settings.SlideshowPhotoLimit <= 0 {
		return s.Config.DefaultLimit, nil
	}
	return settings.SlideshowPhotoLimit, nil
}

// evict deletes posts concurrently and waits for every attempt. Failures are
// logged and counted, the next hydration picks the survivors up again.
func (s *Synchronizer) evict(ctx context.Context, familyID string, posts []*PostView) int {
	var (
		wg       sync.WaitGroup
		failures int32
	)
	for _, post := range posts {
		wg.Add(1)
		go func(p *PostView) {
			defer wg.Done()
			if err := s.backend.DeletePost(ctx, p.Id); err != nil && !errors.Is(err, ErrNotFound) {
				atomic.AddInt32(&failures, 1)
				Logger.Log.Errorf("%s: fail to evict post %s of family %s: %s", s.Config.Name, p.Id, familyID, err)
			}
		}(post)
	}
	wg.Wait()
	return int(failures)
}

// applyFavorite flips the local copy of a post and publishes the result.
// It returns the previous value.
func (s *Synchronizer) applyFavorite(postID string, isFavorite bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, view := range s.state.Posts {
		if view.Id != postID {
			continue
		}
		previous := view.IsFavorite
		updated := *view
		updated.IsFavorite = isFavorite

		posts := make([]*PostView, len(s.state.Posts))
		copy(posts, s.state.Posts)
		posts[i] = &updated

		next := s.state
		next.Posts = posts
		s.publishLocked(next)
		return previous, nil
	}
	return false, preconditionFailed("post %s is not in the local feed", postID)
}

// lookupPost returns the local view of postID.
func (s *Synchronizer) lookupPost(postID string) (*PostView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, view := range s.state.Posts {
		if view.Id == postID {
			return view, true
		}
	}
	return nil, false
}
