// Package inventory holds item instances and the owner-scoped containers
// they live in. Items only ever move between inventories; nothing here copies
// or mints material.
package inventory

import (
	"sort"

	"github.com/google/uuid"
)

// Item is a stack of one base item type: a quantity plus the descriptive tags
// and quality that distinguish it from other stacks of the same type.
type Item struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Quantity int      `json:"quantity"`
	Quality  float64  `json:"quality"`
	Tags     []string `json:"tags,omitempty"`
}

// NewItem builds a stack. Tags are kept sorted so equal stacks merge and
// snapshots stay stable; quality clamps to 0-100.
func NewItem(itemType string, quantity int, quality float64, tags []string) *Item {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return &Item{
		ID:       uuid.NewString(),
		Type:     itemType,
		Quantity: quantity,
		Quality:  quality,
		Tags:     sorted,
	}
}

// HasTags reports whether the stack carries every required tag.
func (it *Item) HasTags(required []string) bool {
	for _, want := range required {
		found := false
		for _, tag := range it.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the stack, same ID included. Used by
// snapshots so persisted state never aliases live state.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Tags = append([]string(nil), it.Tags...)
	return &cp
}

// Matches applies a request's filters, ignoring count.
func (it *Item) Matches(req Request) bool {
	if it.Type != req.Type {
		return false
	}
	if req.MaxQuality > 0 && it.Quality > req.MaxQuality {
		return false
	}
	return it.HasTags(req.RequiredTags)
}

// split carves n units off into a new stack, leaving the rest behind.
func (it *Item) split(n int) *Item {
	part := &Item{
		ID:       uuid.NewString(),
		Type:     it.Type,
		Quantity: n,
		Quality:  it.Quality,
		Tags:     append([]string(nil), it.Tags...),
	}
	it.Quantity -= n
	return part
}

// sameStack reports whether two stacks are indistinguishable and may merge.
func sameStack(a, b *Item) bool {
	if a.Type != b.Type || a.Quality != b.Quality || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
