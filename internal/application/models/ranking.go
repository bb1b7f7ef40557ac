package models

import "sort"

// Rank orders applications for the admin review queue: highest score first,
// unscored last, then earliest submission, then id.
func Rank(apps []*Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		return rankedBefore(apps[i], apps[j])
	})
}

func rankedBefore(a, b *Application) bool {
	switch {
	case a.EligibilityScore != nil && b.EligibilityScore == nil:
		return true
	case a.EligibilityScore == nil && b.EligibilityScore != nil:
		return false
	case a.EligibilityScore != nil && *a.EligibilityScore != *b.EligibilityScore:
		return *a.EligibilityScore > *b.EligibilityScore
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

// SortNewestFirst orders an applicant's history by submission time, newest first.
func SortNewestFirst(apps []*Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		if !apps[i].SubmittedAt.Equal(apps[j].SubmittedAt) {
			return apps[i].SubmittedAt.After(apps[j].SubmittedAt)
		}
		return apps[i].ID > apps[j].ID
	})
}
