package coerce

import (
	"github.com/amirbrooks/taskport/internal/model"
)

// Keys are MatchKey forms: lowercase alphanumerics only.
var statusSynonyms = map[string]model.Status{
	"pending":        model.StatusPending,
	"todo":           model.StatusPending,
	"open":           model.StatusPending,
	"new":            model.StatusPending,
	"backlog":        model.StatusPending,
	"notstarted":     model.StatusPending,
	"planned":        model.StatusPending,
	"incomplete":     model.StatusPending,
	"queued":         model.StatusPending,
	"inprogress":     model.StatusInProgress,
	"doing":          model.StatusInProgress,
	"active":         model.StatusInProgress,
	"started":        model.StatusInProgress,
	"wip":            model.StatusInProgress,
	"working":        model.StatusInProgress,
	"ongoing":        model.StatusInProgress,
	"inwork":         model.StatusInProgress,
	"completed":      model.StatusCompleted,
	"complete":       model.StatusCompleted,
	"done":           model.StatusCompleted,
	"finished":       model.StatusCompleted,
	"closed":         model.StatusCompleted,
	"resolved":       model.StatusCompleted,
	"shipped":        model.StatusCompleted,
	"cancelled":      model.StatusCancelled,
	"canceled":       model.StatusCancelled,
	"abandoned":      model.StatusCancelled,
	"dropped":        model.StatusCancelled,
	"wontfix":        model.StatusCancelled,
	"wontdo":         model.StatusCancelled,
	"rejected":       model.StatusCancelled,
	"void":           model.StatusCancelled,
	"blocked":        model.StatusBlocked,
	"onhold":         model.StatusBlocked,
	"hold":           model.StatusBlocked,
	"waiting":        model.StatusBlocked,
	"stuck":          model.StatusBlocked,
	"paused":         model.StatusBlocked,
	"deferred":       model.StatusBlocked,
	"review":         model.StatusReview,
	"inreview":       model.StatusReview,
	"reviewing":      model.StatusReview,
	"pendingreview":  model.StatusReview,
	"awaitingreview": model.StatusReview,
	"needsreview":    model.StatusReview,
	"qa":             model.StatusReview,
	"testing":        model.StatusReview,
	"verify":         model.StatusReview,
}

var prioritySynonyms = map[string]model.Priority{
	"low":       model.PriorityLow,
	"l":         model.PriorityLow,
	"lowest":    model.PriorityLow,
	"minor":     model.PriorityLow,
	"trivial":   model.PriorityLow,
	"someday":   model.PriorityLow,
	"p3":        model.PriorityLow,
	"p4":        model.PriorityLow,
	"medium":    model.PriorityMedium,
	"med":       model.PriorityMedium,
	"m":         model.PriorityMedium,
	"normal":    model.PriorityMedium,
	"n":         model.PriorityMedium,
	"moderate":  model.PriorityMedium,
	"default":   model.PriorityMedium,
	"p2":        model.PriorityMedium,
	"high":      model.PriorityHigh,
	"h":         model.PriorityHigh,
	"important": model.PriorityHigh,
	"major":     model.PriorityHigh,
	"p1":        model.PriorityHigh,
	"urgent":    model.PriorityUrgent,
	"u":         model.PriorityUrgent,
	"critical":  model.PriorityUrgent,
	"highest":   model.PriorityUrgent,
	"asap":      model.PriorityUrgent,
	"blocker":   model.PriorityUrgent,
	"emergency": model.PriorityUrgent,
	"p0":        model.PriorityUrgent,
}

// NormalizeStatus collapses status spellings ("ToDo", "in-progress", "Done") into the
// closed enum. Unrecognized or empty values become pending.
func NormalizeStatus(v any) model.Status {
	if s, ok := statusSynonyms[MatchKey(String(v))]; ok {
		return s
	}
	return model.StatusPending
}

// LookupStatus is NormalizeStatus without the default; ok is false when v is unknown.
func LookupStatus(v any) (model.Status, bool) {
	s, ok := statusSynonyms[MatchKey(String(v))]
	return s, ok
}

// NormalizePriority collapses priority spellings into the closed enum. Unrecognized or
// empty values become medium.
func NormalizePriority(v any) model.Priority {
	if p, ok := prioritySynonyms[MatchKey(String(v))]; ok {
		return p
	}
	return model.PriorityMedium
}

// LookupPriority is NormalizePriority without the default.
func LookupPriority(v any) (model.Priority, bool) {
	p, ok := prioritySynonyms[MatchKey(String(v))]
	return p, ok
}
