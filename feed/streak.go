package feed

import (
	"github.com/Luismorlan/familyfeed/model"
)

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns the number of calendar days from a to b, negative if b
// is before a. Both dates are placed at UTC midnight, which has no daylight
// saving shifts, so the division is exact.
func DaysBetween(a, b model.Date) int {
	return int((b.Midnight().Unix() - a.Midnight().Unix()) / secondsPerDay)
}

// ComputeStreak returns the streak a new post made today carries.
//
//	no previous post         -> 1
//	already posted today     -> current
//	posted yesterday         -> current + 1
//	gap or backdated history -> 1
func ComputeStreak(lastPostDate *model.Date, current int, today model.Date) int {
	if lastPostDate == nil {
		return 1
	}
	switch days := DaysBetween(*lastPostDate, today); {
	case days == 0:
		return current
	case days == 1:
		return current + 1
	default:
		return 1
	}
}
