package feed

import (
	"github.com/samber/lo"
)

const DefaultSlideshowPhotoLimit = 30

// RetentionDecision is what EnforceRetention decided for a feed.
type RetentionDecision struct {
	// Retained posts, newest first.
	Retained []*PostView
	// Removed posts, oldest first. They must be deleted permanently.
	Removed []*PostView
	// OverCapacity is set when favorites alone exceed the limit and nothing
	// could be removed.
	OverCapacity bool
}

// EnforceRetention picks which posts have to go so that at most limit posts
// remain. views must be newest first. Favorites are never picked; among the
// rest the oldest go first. If there are not enough non-favorited posts to
// clear the excess nothing is removed at all.
func EnforceRetention(views []*PostView, limit int) RetentionDecision {
	excess := len(views) - limit
	if excess <= 0 {
		return RetentionDecision{Retained: views}
	}

	// Walk from the oldest end.
	candidates := make([]*PostView, 0, excess)
	for i := len(views) - 1; i >= 0 && len(candidates) < excess; i-- {
		if !views[i].IsFavorite {
			candidates = append(candidates, views[i])
		}
	}
	if len(candidates) < excess {
		return RetentionDecision{Retained: views, OverCapacity: true}
	}

	removed := lo.SliceToMap(candidates, func(v *PostView) (string, bool) { return v.Id, true })
	retained := lo.Filter(views, func(v *PostView, _ int) bool { return !removed[v.Id] })
	return RetentionDecision{Retained: retained, Removed: candidates}
}
