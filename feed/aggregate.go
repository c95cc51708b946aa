package feed

import (
	"sort"

	"github.com/samber/lo"

	"github.com/Luismorlan/familyfeed/model"
)

// PostView is a post plus the engagement derived from its reactions. It is
// rebuilt on every hydration and never stored.
type PostView struct {
	model.Post

	LikesCount     int
	CommentsCount  int
	ViewerHasLiked bool
	// Reactions of kind SLIDESHOW_VIEW, consumed by the slideshow display.
	SlideshowReactions []*model.Reaction
}

// BuildPostViews derives a PostView for every post as seen by viewerID,
// newest first. Posts with equal timestamps are ordered by id so the result
// is stable across hydrations.
func BuildPostViews(posts []*model.Post, viewerID string) []*PostView {
	views := make([]*PostView, 0, len(posts))
	for _, post := range posts {
		if post == nil {
			continue
		}
		views = append(views, buildPostView(post, viewerID))
	}
	sortNewestFirst(views)
	return views
}

func buildPostView(post *model.Post, viewerID string) *PostView {
	reactions := lo.Filter(post.Reactions, func(r *model.Reaction, _ int) bool {
		return r != nil
	})
	likes := lo.Filter(reactions, func(r *model.Reaction, _ int) bool {
		return r.Kind == model.ReactionKindLike
	})

	return &PostView{
		Post:          *post,
		LikesCount:    len(likes),
		CommentsCount: lo.CountBy(reactions, func(r *model.Reaction) bool { return r.Kind == model.ReactionKindComment }),
		ViewerHasLiked: viewerID != "" && lo.ContainsBy(likes, func(r *model.Reaction) bool {
			return r.UserID == viewerID
		}),
		SlideshowReactions: lo.Filter(reactions, func(r *model.Reaction, _ int) bool {
			return r.Kind == model.ReactionKindSlideshowView
		}),
	}
}

func sortNewestFirst(views []*PostView) {
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].Timestamp.Equal(views[j].Timestamp) {
			return views[i].Timestamp.After(views[j].Timestamp)
		}
		return views[i].Id > views[j].Id
	})
}

// PostIDs returns the ids of views in order.
func PostIDs(views []*PostView) []string {
	return lo.Map(views, func(v *PostView, _ int) string { return v.Id })
}
