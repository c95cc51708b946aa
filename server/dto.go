package server

import (
	"time"

	"github.com/jinzhu/copier"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
)

type ReactionDTO struct {
	Id              string             `json:"id"`
	CreatedAt       time.Time          `json:"created_at"`
	UserID          string             `json:"user_id"`
	Kind            model.ReactionKind `json:"kind"`
	Comment         *string            `json:"comment,omitempty"`
	AuthorName      string             `json:"author_name"`
	AuthorAvatarUrl string             `json:"author_avatar_url"`
}

type PostDTO struct {
	Id             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	AuthorUserId   string          `json:"author_user_id"`
	AuthorName     string          `json:"author_name"`
	AuthorAvatar   string          `json:"author_avatar_url"`
	MediaUrl       string          `json:"media_url"`
	MediaType      model.MediaType `json:"media_type"`
	Caption        string          `json:"caption"`
	IsFavorite     bool            `json:"is_favorite"`
	StreakCount    int             `json:"streak_count"`
	LikesCount     int             `json:"likes_count"`
	CommentsCount  int             `json:"comments_count"`
	ViewerHasLiked bool            `json:"viewer_has_liked"`
	Slideshow      []ReactionDTO   `json:"slideshow_reactions"`
}

type FeedStateDTO struct {
	FamilyID string    `json:"family_id"`
	Status   string    `json:"status"`
	Posts    []PostDTO `json:"posts"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
	Version  uint64    `json:"version"`
}

type CreatePostRequest struct {
	MediaUrl  string   `json:"media_url"`
	MediaType string   `json:"media_type"`
	Caption   string   `json:"caption"`
	// Free form, e.g. "2026-10-01 18:30" or an EXIF style "2026:10:01 18:30:00".
	TakenAt   string   `json:"taken_at"`
	FamilyIds []string `json:"family_ids"`
}

func toPostDTO(view *feed.PostView) (PostDTO, error) {
	dto := PostDTO{}
	if err := copier.Copy(&dto, view); err != nil {
		return dto, err
	}
	dto.AuthorUserId = view.Author.UserId
	dto.AuthorName = view.Author.Name
	dto.AuthorAvatar = view.Author.AvatarUrl

	dto.Slideshow = []ReactionDTO{}
	if len(view.SlideshowReactions) > 0 {
		if err := copier.Copy(&dto.Slideshow, view.SlideshowReactions); err != nil {
			return dto, err
		}
	}
	return dto, nil
}

func toFeedStateDTO(state feed.State) (FeedStateDTO, error) {
	dto := FeedStateDTO{
		FamilyID: state.FamilyID,
		Status:   state.Status.String(),
		Posts:    make([]PostDTO, 0, len(state.Posts)),
		Loading:  state.Loading,
		Version:  state.Version,
	}
	if state.Error != nil {
		dto.Error = state.Error.Error()
	}
	for _, view := range state.Posts {
		post, err := toPostDTO(view)
		if err != nil {
			return dto, err
		}
		dto.Posts = append(dto.Posts, post)
	}
	return dto, nil
}
