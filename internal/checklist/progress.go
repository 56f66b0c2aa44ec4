package checklist

import "multisigcheck/internal/catalog"

// Progress summarizes completion over a set of items.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// CalculateProgress counts the items for which done reports true.
func CalculateProgress(items []catalog.Item, done func(id string) bool) Progress {
	p := Progress{Total: len(items)}
	for _, it := range items {
		if done(it.ID) {
			p.Completed++
		}
	}
	p.Percentage = percentage(p.Completed, p.Total)
	return p
}

// CriticalProgress is CalculateProgress restricted to critical items.
func CriticalProgress(items []catalog.Item, done func(id string) bool) Progress {
	critical := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if it.Priority == catalog.PriorityCritical {
			critical = append(critical, it)
		}
	}
	return CalculateProgress(critical, done)
}

// percentage rounds half up and is 0 for an empty set.
func percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}
