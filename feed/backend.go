package feed

import (
	"context"

	"github.com/Luismorlan/familyfeed/model"
)

// Backend is the store of record. Implementations own query execution,
// network retries and timeouts; the feed treats every failure alike.
type Backend interface {
	// GetFamilySettings returns ErrNotFound if the family has no settings row.
	GetFamilySettings(ctx context.Context, familyID string) (*model.FamilySettings, error)
	// ListPostsWithReactions returns every post visible to the family with
	// Reactions populated. Order is unspecified.
	ListPostsWithReactions(ctx context.Context, familyID string) ([]*model.Post, error)
	// DeletePost is idempotent, deleting a missing post succeeds.
	DeletePost(ctx context.Context, postID string) error
	InsertPost(ctx context.Context, post *model.Post) (*model.Post, error)
	InsertPostFamilyLinks(ctx context.Context, links []model.PostFamilyLink) error
	GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpdateUserStreak(ctx context.Context, userID string, streakCount int, lastPostDate model.Date) error
	UpdatePostFavorite(ctx context.Context, postID string, isFavorite bool) error
	// CurrentUser returns ErrUnauthenticated when no acting user is known.
	CurrentUser(ctx context.Context) (model.UserIdentity, error)
}

// TxBackend is a Backend able to run several writes atomically. fn receives
// a Backend bound to the transaction.
type TxBackend interface {
	Backend
	WithinTransaction(ctx context.Context, fn func(tx Backend) error) error
}

// Subscription is a stream of "re-hydrate" signals. C is closed after
// Unsubscribe, which may be called more than once.
type Subscription interface {
	C() <-chan struct{}
	Unsubscribe()
}

// Notifier hands out change subscriptions for a family. Delivery is best
// effort and may duplicate.
type Notifier interface {
	Subscribe(ctx context.Context, familyID string) (Subscription, error)
}

// ChangePublisher announces that a family's feed changed.
type ChangePublisher interface {
	NotifyFamilyChanged(ctx context.Context, familyID string) error
}

// Reporter receives one report per finished hydration.
type Reporter interface {
	ReportHydration(ctx context.Context, report HydrationReport)
}

// HydrationReport summarizes one hydration cycle.
type HydrationReport struct {
	FamilyID         string
	Retained         int
	Evicted          int
	EvictionFailures int
	Limit            int
	// OverCapacity is set when favorites alone exceed the limit.
	OverCapacity bool
	// Failed is set when the hydration ended in the Errored state.
	Failed bool
	// Stale is set when the result was discarded after a family switch.
	Stale bool
}
