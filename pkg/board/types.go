package board

import (
	"math"
	"slices"
)

// Size is a width/height pair in board units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Position is the top-left corner of a card in board units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Metadata is the fetched description of one poster.
type Metadata struct {
	// PostTime is an already formatted display string; it is never parsed.
	PostTime string
	// Tags is semantically a set. Order is kept for display.
	Tags []string
	// AspectRatio is width / height and must be positive.
	AspectRatio float64
	// Width and Height are the source image dimensions, informational only.
	Width  float64
	Height float64
}

// Poster pairs a poster name with its metadata.
type Poster struct {
	Name     string
	Metadata Metadata
}

// Catalog is the ordered result of a poster info fetch. Order is the key
// order of the source document and determines entity ids.
type Catalog []Poster

// Names returns the poster names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name
	}
	return names
}

// Entity is one poster's on-screen representation.
type Entity struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	PostTime    string   `json:"post_time"`
	Tags        []string `json:"tags"`
	Size        Size     `json:"size"`
	Position    Position `json:"position"`
	ZIndex      int      `json:"z_index"`
	AspectRatio float64  `json:"aspect_ratio"`
}

// HasAnyTag reports whether the entity carries at least one tag in set.
func (e Entity) HasAnyTag(set map[string]struct{}) bool {
	for _, t := range e.Tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// HasTag reports whether the entity carries tag.
func (e Entity) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// clone returns a copy whose tag slice does not alias e's.
func (e Entity) clone() Entity {
	e.Tags = slices.Clone(e.Tags)
	return e
}

// dedupeTags drops repeated tags, keeping the first occurrence.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
