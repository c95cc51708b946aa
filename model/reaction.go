package model

import (
	"time"
)

/*

Reaction is something a user did on a post

Id: primary key
CreatedAt: time when entity is created
PostID: owning post, deleted with it
UserID: user who reacted
Kind: LIKE, COMMENT or SLIDESHOW_VIEW
Comment: only set for COMMENT reactions
AuthorName / AuthorAvatarUrl: denormalized display fields of the reacting user

Every row counts once in aggregates, a user liking twice yields two likes.
*/

type Reaction struct {
	Id              string `gorm:"primaryKey"`
	CreatedAt       time.Time
	PostID          string `gorm:"index"`
	UserID          string
	Kind            ReactionKind
	Comment         *string
	AuthorName      string
	AuthorAvatarUrl string
}

type ReactionKind string

const (
	ReactionKindLike          ReactionKind = "LIKE"
	ReactionKindComment       ReactionKind = "COMMENT"
	ReactionKindSlideshowView ReactionKind = "SLIDESHOW_VIEW"
)

var AllReactionKind = []ReactionKind{
	ReactionKindLike,
	ReactionKindComment,
	ReactionKindSlideshowView,
}

func (e ReactionKind) IsValid() bool {
	switch e {
	case ReactionKindLike, ReactionKindComment, ReactionKindSlideshowView:
		return true
	}
	return false
}

func (e ReactionKind) String() string {
	return string(e)
}
