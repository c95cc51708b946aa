package feed

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/Luismorlan/familyfeed/model"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// PostDraft is what a user submits to create a post.
type PostDraft struct {
	MediaUrl  string          `validate:"required,url"`
	MediaType model.MediaType `validate:"required,oneof=image video"`
	Caption   string          `validate:"max=2000"`
	// TakenAt overrides the post timestamp for imported media. Zero means now.
	TakenAt time.Time
}

// Clock returns the current instant.
type Clock func() time.Time

type GatewayConfig struct {
	// Location defines calendar days for streaks. Defaults to UTC.
	Location *time.Location
	Clock    Clock
}

// Gateway applies user writes. It reconciles the synchronizer's local state
// optimistically for favorites; created posts only show up through the next
// hydration.
type Gateway struct {
	Config GatewayConfig

	backend   Backend
	sync      *Synchronizer
	publisher ChangePublisher
	validate  *validator.Validate
}

// NewGateway creates a gateway writing to backend. sync and publisher may be
// nil, in which case local state is not touched or nobody is notified.
func NewGateway(config GatewayConfig, backend Backend, sync *Synchronizer, publisher ChangePublisher) *Gateway {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Gateway{
		Config:    config,
		backend:   backend,
		sync:      sync,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// Today returns the calendar date used for streaks.
func (g *Gateway) Today() model.Date {
	return model.DateOf(g.Config.Clock().In(g.Config.Location))
}

// CreatePost writes a new post shared with familyIDs and advances the
// author's streak. The post, its family links and the streak update form one
// operation: any failure fails the whole call. Returns the new post id.
func (g *Gateway) CreatePost(ctx context.Context, draft PostDraft, familyIDs []string) (string, error) {
	if err := g.validate.Struct(draft); err != nil {
		return "", errors.Wrap(ErrPreconditionFailed, err.Error())
	}
	familyIDs = lo.Uniq(lo.Compact(familyIDs))
	if len(familyIDs) == 0 {
		return "", preconditionFailed("post must be shared with at least one family")
	}

	identity, err := g.backend.CurrentUser(ctx)
	if err != nil {
		return "", classify(err, "resolve current user")
	}
	if identity.Id == "" {
		return "", errors.WithMessage(ErrUnauthenticated, "resolve current user")
	}

	now := g.Config.Clock()
	timestamp := now
	if !draft.TakenAt.IsZero() {
		timestamp = draft.TakenAt
	}
	today := model.DateOf(now.In(g.Config.Location))
	postID := uuid.New().String()

	write := func(b Backend) error {
		profile, err := b.GetUserProfile(ctx, identity.Id)
		if err != nil {
			return classify(err, "get profile of user "+identity.Id)
		}
		streak := ComputeStreak(profile.LastPostDate, profile.StreakCount, today)

		post := &model.Post{
			Id:        postID,
			CreatedAt: now,
			Timestamp: timestamp,
			Author: model.Author{
				UserId:    identity.Id,
				Name:      profile.Name,
				AvatarUrl: profile.AvatarUrl,
			},
			MediaUrl:    draft.MediaUrl,
			MediaType:   draft.MediaType,
			Caption:     draft.Caption,
			StreakCount: streak,
		}
		if _, err := b.InsertPost(ctx, post); err != nil {
			return classify(err, "insert post")
		}

		links := lo.Map(familyIDs, func(familyID string, _ int) model.PostFamilyLink {
			return model.PostFamilyLink{PostID: postID, FamilyID: familyID, CreatedAt: now}
		})
		if err := b.InsertPostFamilyLinks(ctx, links); err != nil {
			return classify(err, "link post "+postID)
		}

		if err := b.UpdateUserStreak(ctx, identity.Id, streak, today); err != nil {
			return classify(err, "update streak of user "+identity.Id)
		}
		return nil
	}

	if tx, ok := g.backend.(TxBackend); ok {
		err = tx.WithinTransaction(ctx, write)
	} else {
		err = write(g.backend)
	}
	if err != nil {
		return "", classify(err, "create post")
	}

	for _, familyID := range familyIDs {
		g.announce(ctx, familyID)
	}
	return postID, nil
}

// ToggleFavorite flips is_favorite of a post in the local feed, then writes
// it. On a failed write the local flag is put back. Toggles on the same feed
// run one at a time, so local state and the backend agree on the last one.
func (g *Gateway) ToggleFavorite(ctx context.Context, postID string) (bool, error) {
	if g.sync == nil {
		return false, preconditionFailed("no local feed")
	}
	g.sync.favoriteMu.Lock()
	defer g.sync.favoriteMu.Unlock()

	view, ok := g.sync.lookupPost(postID)
	if !ok {
		return false, preconditionFailed("post %s is not in the local feed", postID)
	}
	target := !view.IsFavorite

	previous, err := g.sync.applyFavorite(postID, target)
	if err != nil {
		return false, err
	}

	if err := g.backend.UpdatePostFavorite(ctx, postID, target); err != nil {
		if _, revertErr := g.sync.applyFavorite(postID, previous); revertErr != nil {
			// A hydration dropped the post meanwhile, nothing left to revert.
			Logger.Log.Infof("post %s left the feed before favorite revert", postID)
		}
		return previous, classify(err, "update favorite of post "+postID)
	}

	g.announce(ctx, g.sync.FamilyID())
	return target, nil
}

// announce tells everybody, this gateway's synchronizer included, that a
// family changed. Duplicate triggers coalesce in the synchronizer.
func (g *Gateway) announce(ctx context.Context, familyID string) {
	if g.publisher != nil {
		if err := g.publisher.NotifyFamilyChanged(ctx, familyID); err != nil {
			Logger.Log.Errorf("fail to announce change of family %s: %s", familyID, err)
		}
	}
	if g.sync != nil {
		g.sync.Notify(familyID)
	}
}
