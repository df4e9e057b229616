package playback

import (
	"slices"
	"time"
)

// SortEntries orders entries ascending by OrderKey, breaking ties by
// insertion sequence. Duplicate keys are kept as they are.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch {
		case a.OrderKey < b.OrderKey:
			return -1
		case a.OrderKey > b.OrderKey:
			return 1
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// Sorted returns an ordered copy of entries.
func Sorted(entries []Entry) []Entry {
	out := slices.Clone(entries)
	SortEntries(out)
	return out
}

// Head returns the entry that plays next.
func Head(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	head := entries[0]
	for _, e := range entries[1:] {
		if e.OrderKey < head.OrderKey || (e.OrderKey == head.OrderKey && e.Seq < head.Seq) {
			head = e
		}
	}
	return head, true
}

func MaxOrderKey(entries []Entry) (int64, bool) {
	if len(entries) == 0 {
		return 0, false
	}
	m := entries[0].OrderKey
	for _, e := range entries[1:] {
		m = max(m, e.OrderKey)
	}
	return m, true
}

// NextOrderKey derives a key from the wall clock, bumped past every existing
// key so that enqueue order always matches call order.
func NextOrderKey(now time.Time, entries []Entry) int64 {
	key := now.UnixMilli()
	if m, ok := MaxOrderKey(entries); ok && key <= m {
		key = m + 1
	}
	return key
}

func IndexOf(entries []Entry, id string) int {
	return slices.IndexFunc(entries, func(e Entry) bool { return e.ID == id })
}
