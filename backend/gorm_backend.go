package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
	"github.com/Luismorlan/familyfeed/utils"
)

// GormBackend is the postgres store of record. The acting user is read from
// the request context, see WithUser.
type GormBackend struct {
	DB *gorm.DB
}

var _ feed.TxBackend = &GormBackend{}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{DB: db}
}

func (b *GormBackend) GetFamilySettings(ctx context.Context, familyID string) (*model.FamilySettings, error) {
	var settings model.FamilySettings
	res := b.DB.WithContext(ctx).Where("family_id = ?", familyID).Limit(1).Find(&settings)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "query settings of family %s", familyID)
	}
	if res.RowsAffected != 1 {
		return nil, errors.Wrapf(feed.ErrNotFound, "settings of family %s", familyID)
	}
	return &settings, nil
}

func (b *GormBackend) ListPostsWithReactions(ctx context.Context, familyID string) ([]*model.Post, error) {
	var posts []*model.Post
	err := b.DB.WithContext(ctx).
		Joins("JOIN post_family_links ON post_family_links.post_id = posts.id").
		Where("post_family_links.family_id = ?", familyID).
		Preload("Reactions").
		Order("posts.timestamp desc").
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query posts of family %s", familyID)
	}
	return posts, nil
}

// DeletePost removes a post with its reactions and family links. Deleting a
// post that is already gone succeeds.
func (b *GormBackend) DeletePost(ctx context.Context, postID string) error {
	var deletePost utils.GormTransaction = func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&model.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.PostFamilyLink{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", postID).Delete(&model.Post{}).Error
	}
	if err := b.DB.WithContext(ctx).Transaction(deletePost); err != nil {
		return errors.Wrapf(err, "delete post %s", postID)
	}
	return nil
}

func (b *GormBackend) InsertPost(ctx context.Context, post *model.Post) (*model.Post, error) {
	if err := b.DB.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return nil, errors.Wrapf(err, "insert post %s", post.Id)
	}
	return post, nil
}

func (b *GormBackend) InsertPostFamilyLinks(ctx context.Context, links []model.PostFamilyLink) error {
	if len(links) == 0 {
		return nil
	}
	if err := b.DB.WithContext(ctx).Create(&links).Error; err != nil {
		return errors.Wrap(err, "insert post family links")
	}
	return nil
}

func (b *GormBackend) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var user model.User
	res := b.DB.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&user)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "query user %s", userID)
	}
	if res.RowsAffected != 1 {
		return nil, errors.Wrapf(feed.ErrNotFound, "user %s", userID)
	}

	profile := &model.UserProfile{
		Name:        user.Name,
		AvatarUrl:   user.AvatarUrl,
		StreakCount: user.StreakCount,
	}
	if user.LastPostDate != nil {
		d := model.DateOf(time.Time(*user.LastPostDate))
		profile.LastPostDate = &d
	}
	return profile, nil
}

func (b *GormBackend) UpdateUserStreak(ctx context.Context, userID string, streakCount int, lastPostDate model.Date) error {
	res := b.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"streak_count":   streakCount,
		"last_post_date": datatypes.Date(lastPostDate.Midnight()),
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update streak of user %s", userID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(feed.ErrNotFound, "user %s", userID)
	}
	return nil
}

func (b *GormBackend) UpdatePostFavorite(ctx context.Context, postID string, isFavorite bool) error {
	res := b.DB.WithContext(ctx).Model(&model.Post{}).Where("id = ?", postID).Update("is_favorite", isFavorite)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update favorite of post %s", postID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(feed.ErrNotFound, "post %s", postID)
	}
	return nil
}

func (b *GormBackend) CurrentUser(ctx context.Context) (model.UserIdentity, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return model.UserIdentity{}, feed.ErrUnauthenticated
	}
	return model.UserIdentity{Id: userID}, nil
}

// WithinTransaction runs fn against a backend bound to one transaction. Any
// error returned by fn rolls everything back.
func (b *GormBackend) WithinTransaction(ctx context.Context, fn func(tx feed.Backend) error) error {
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormBackend{DB: tx})
	})
}

// UpsertFamilySettings creates or replaces the retention limit of a family.
func (b *GormBackend) UpsertFamilySettings(ctx context.Context, settings *model.FamilySettings) error {
	err := b.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "family_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"slideshow_photo_limit", "updated_at"}),
	}).Create(settings).Error
	return errors.Wrapf(err, "upsert settings of family %s", settings.FamilyID)
}
