package feed

import (
	"sort"
	"strings"
)

// SeenChecker reports whether a source item was already published.
type SeenChecker interface {
	Contains(id string) bool
}

type Filterer struct {
	reviewPrefix string
}

func NewFilterer(reviewPrefix string) *Filterer {
	return &Filterer{reviewPrefix: reviewPrefix}
}

func (f *Filterer) IsReview(item SourceItem) bool {
	return strings.HasPrefix(item.GUID, f.reviewPrefix)
}

// Reviews drops every non-review activity, keeping source order.
func (f *Filterer) Reviews(items []SourceItem) []SourceItem {
	reviews := make([]SourceItem, 0, len(items))
	for _, item := range items {
		if f.IsReview(item) {
			reviews = append(reviews, item)
		}
	}
	return reviews
}

// Unseen keeps reviews whose id is not in seen.
func (f *Filterer) Unseen(items []SourceItem, seen SeenChecker) []SourceItem {
	unseen := make([]SourceItem, 0, len(items))
	for _, item := range items {
		if f.IsReview(item) && !seen.Contains(item.GUID) {
			unseen = append(unseen, item)
		}
	}
	return unseen
}

// Newest returns the n most recently published reviews, newest first.
func (f *Filterer) Newest(items []SourceItem, n int) []SourceItem {
	reviews := f.Reviews(items)
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].PublishedAt.After(reviews[j].PublishedAt)
	})
	if n >= 0 && len(reviews) > n {
		reviews = reviews[:n]
	}
	return reviews
}
