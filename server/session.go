package server

import (
	"context"
	"sync"
	"time"

	"github.com/Luismorlan/familyfeed/backend"
	"github.com/Luismorlan/familyfeed/feed"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// Session is one user's live feed: a synchronizer selecting one family at a
// time and the gateway writing on its behalf.
type Session struct {
	UserId  string
	Sync    *feed.Synchronizer
	Gateway *feed.Gateway

	cancel   context.CancelFunc
	lastSeen time.Time
}

type SessionRegistryConfig struct {
	DefaultLimit int
	// Calendar days of streaks.
	Location *time.Location
	// Sessions unused for this long are closed by ReapIdle. Zero disables.
	IdleTimeout time.Duration
	Clock       feed.Clock
}

// SessionRegistry owns every live session of this process. It implements
// the refresher the periodic sweep calls.
type SessionRegistry struct {
	Config SessionRegistryConfig

	ctx       context.Context
	backend   feed.Backend
	notifier  feed.Notifier
	reporter  feed.Reporter
	publisher feed.ChangePublisher

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry(
	ctx context.Context,
	config SessionRegistryConfig,
	backend feed.Backend,
	notifier feed.Notifier,
	reporter feed.Reporter,
	publisher feed.ChangePublisher,
) *SessionRegistry {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &SessionRegistry{
		Config:    config,
		ctx:       ctx,
		backend:   backend,
		notifier:  notifier,
		reporter:  reporter,
		publisher: publisher,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session of userID, creating it on first use.
func (r *SessionRegistry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		s.lastSeen = r.Config.Clock()
		return s
	}

	ctx, cancel := context.WithCancel(backend.WithUser(r.ctx, userID))
	synchronizer := feed.NewSynchronizer(ctx, feed.SynchronizerConfig{
		Name:         "session_" + userID,
		DefaultLimit: r.Config.DefaultLimit,
	}, r.backend, r.notifier, r.reporter)
	gateway := feed.NewGateway(feed.GatewayConfig{
		Location: r.Config.Location,
		Clock:    r.Config.Clock,
	}, r.backend, synchronizer, r.publisher)

	s := &Session{
		UserId:   userID,
		Sync:     synchronizer,
		Gateway:  gateway,
		cancel:   cancel,
		lastSeen: r.Config.Clock(),
	}
	r.sessions[userID] = s
	Logger.Log.Infof("session of user %s created", userID)
	return s
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// RefreshAll re-hydrates every session showing a family and closes idle
// ones. Returns the number of refreshed sessions.
func (r *SessionRegistry) RefreshAll() int {
	r.ReapIdle()
	refreshed := 0
	for _, s := range r.snapshot() {
		if s.Sync.State().Status == feed.StatusIdle {
			continue
		}
		if err := s.Sync.Refresh(); err != nil {
			Logger.Log.Warnf("fail to refresh session of user %s: %s", s.UserId, err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// ReapIdle closes sessions unused for longer than IdleTimeout.
func (r *SessionRegistry) ReapIdle() int {
	if r.Config.IdleTimeout <= 0 {
		return 0
	}
	now := r.Config.Clock()

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.Config.IdleTimeout {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
		Logger.Log.Infof("session of user %s closed after being idle", s.UserId)
	}
	return len(idle)
}

// Close closes every session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (s *Session) close() {
	s.Sync.Close()
	s.cancel()
}
