package board

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"time"

	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
)

// Engine owns the entity collection, the tag universe and the selection.
type Engine struct {
	entities []Entity
	byID     map[int]int // entity id -> index in entities
	tags     []string
	selected map[string]struct{}
	nextID   int

	rng       *rand.Rand
	container *Size
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed makes random placement reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	}
}

// WithContainer confines moved cards to a parent of the given size.
func WithContainer(parent Size) Option {
	return func(e *Engine) {
		p := parent
		e.container = &p
	}
}

// WithClock sets the clock used to stamp placeholder cards.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an empty engine. Without WithSeed, random placement
// draws from an unseeded source.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		byID:     make(map[int]int),
		selected: make(map[string]struct{}),
		nextID:   1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// =============================================================================
// Load
// =============================================================================

// Initialize replaces the entity collection with one entity per catalog
// entry. A nil viewport selects the tiled grid; otherwise cards are
// scattered inside the viewport.
//
// Construction is all-or-nothing: if any entry is invalid the engine keeps
// its previous entities, tags and selection and an INVALID_METADATA error
// naming the poster is returned.
func (e *Engine) Initialize(catalog Catalog, viewport *Size) error {
	if viewport != nil && (!isFinite(viewport.Width) || !isFinite(viewport.Height)) {
		return perrors.New(perrors.ErrCodeInvalidInput, "viewport must be finite, got %vx%v", viewport.Width, viewport.Height)
	}
	if err := validateCatalog(catalog); err != nil {
		return err
	}

	entities := make([]Entity, len(catalog))
	byID := make(map[int]int, len(catalog))
	for i, p := range catalog {
		size := Size{Width: BaseWidth, Height: BaseWidth / p.Metadata.AspectRatio}
		var pos Position
		if viewport != nil {
			pos = ScatterPosition(e.rng, *viewport, size)
		} else {
			pos = TiledPosition(i)
		}
		id := i + 1
		entities[i] = Entity{
			ID:          id,
			Name:        p.Name,
			PostTime:    p.Metadata.PostTime,
			Tags:        dedupeTags(p.Metadata.Tags),
			Size:        size,
			Position:    pos,
			ZIndex:      id,
			AspectRatio: p.Metadata.AspectRatio,
		}
		byID[id] = i
	}

	e.entities = entities
	e.byID = byID
	e.nextID = len(entities) + 1
	e.tags = tagUniverse(entities)
	e.selected = make(map[string]struct{})
	return nil
}

func validateCatalog(catalog Catalog) error {
	seen := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		if p.Name == "" {
			return perrors.New(perrors.ErrCodeInvalidMetadata, "poster name cannot be empty")
		}
		if _, dup := seen[p.Name]; dup {
			return perrors.New(perrors.ErrCodeInvalidMetadata, "poster %q: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}
		if !isFinitePositive(p.Metadata.AspectRatio) {
			return perrors.New(perrors.ErrCodeInvalidMetadata, "poster %q: aspect ratio must be positive, got %v", p.Name, p.Metadata.AspectRatio)
		}
	}
	return nil
}

// tagUniverse returns the sorted union of all entity tags.
func tagUniverse(entities []Entity) []string {
	set := make(map[string]struct{})
	for _, ent := range entities {
		for _, t := range ent.Tags {
			set[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// =============================================================================
// Mutations
// =============================================================================

// ApplyMove sets the position of entity id. With a container configured the
// position is clamped so the card stays inside it.
func (e *Engine) ApplyMove(id int, pos Position) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !isFinite(pos.X) || !isFinite(pos.Y) {
		return perrors.New(perrors.ErrCodeInvalidInput, "position must be finite, got (%v, %v)", pos.X, pos.Y)
	}
	if e.container != nil {
		pos = clampTo(pos, e.entities[i].Size, *e.container)
	}
	e.entities[i].Position = pos
	return nil
}

// ApplyResize sets the width of entity id and derives its height from the
// entity's aspect ratio.
func (e *Engine) ApplyResize(id int, width float64) error {
	return e.resize(id, width, nil)
}

// ApplyResizeAt resizes like ApplyResize and also stores the position
// reported by the resize gesture's anchor.
func (e *Engine) ApplyResizeAt(id int, width float64, pos Position) error {
	if !isFinite(pos.X) || !isFinite(pos.Y) {
		return perrors.New(perrors.ErrCodeInvalidInput, "position must be finite, got (%v, %v)", pos.X, pos.Y)
	}
	return e.resize(id, width, &pos)
}

func (e *Engine) resize(id int, width float64, pos *Position) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}
	if !isFinitePositive(width) {
		return perrors.New(perrors.ErrCodeInvalidSize, "width must be positive, got %v", width)
	}
	ent := &e.entities[i]
	ent.Size = Size{Width: width, Height: width / ent.AspectRatio}
	if pos != nil {
		ent.Position = *pos
	}
	return nil
}

// AddPlaceholder appends a test card named Test<N>. The tag universe is not
// recomputed; it only reflects the last load.
func (e *Engine) AddPlaceholder() Entity {
	id := e.nextID
	size := Size{Width: placeholderWidth, Height: placeholderHeight}
	ent := Entity{
		ID:       id,
		Name:     fmt.Sprintf("Test%d", id),
		PostTime: e.now().Format("2006/1/2 15:04:05"),
		Tags:     []string{placeholderTag},
		Size:     size,
		Position: Position{
			X: e.rng.Float64() * placeholderSpreadX,
			Y: e.rng.Float64() * placeholderSpreadY,
		},
		ZIndex:      id,
		AspectRatio: placeholderWidth / placeholderHeight,
	}
	e.byID[id] = len(e.entities)
	e.entities = append(e.entities, ent)
	e.nextID++
	return ent.clone()
}

// ToggleTag flips tag's membership in the selection and reports whether it
// is selected afterwards.
func (e *Engine) ToggleTag(tag string) bool {
	if _, ok := e.selected[tag]; ok {
		delete(e.selected, tag)
		return false
	}
	e.selected[tag] = struct{}{}
	return true
}

// RemoveTagFromUniverse hides tag's filter chip: it is dropped from the tag
// universe and from the selection. Entity tags are left as they are. It
// reports whether the universe contained tag.
func (e *Engine) RemoveTagFromUniverse(tag string) bool {
	delete(e.selected, tag)
	i := slices.Index(e.tags, tag)
	if i < 0 {
		return false
	}
	e.tags = slices.Delete(e.tags, i, i+1)
	return true
}

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() {
	clear(e.selected)
}

func (e *Engine) lookup(id int) (int, error) {
	i, ok := e.byID[id]
	if !ok {
		return 0, perrors.New(perrors.ErrCodeEntityNotFound, "no entity with id %d", id)
	}
	return i, nil
}

// =============================================================================
// Queries
// =============================================================================

// VisibleEntities yields, in collection order, the entities that pass the
// tag filter. The selection is read when iteration starts.
func (e *Engine) VisibleEntities() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, ent := range e.entities {
			if len(e.selected) > 0 && !ent.HasAnyTag(e.selected) {
				continue
			}
			if !yield(ent.clone()) {
				return
			}
		}
	}
}

// Entities returns a copy of every entity in collection order.
func (e *Engine) Entities() []Entity {
	out := make([]Entity, len(e.entities))
	for i, ent := range e.entities {
		out[i] = ent.clone()
	}
	return out
}

// Entity returns a copy of the entity with the given id.
func (e *Engine) Entity(id int) (Entity, bool) {
	i, ok := e.byID[id]
	if !ok {
		return Entity{}, false
	}
	return e.entities[i].clone(), true
}

// Len returns the number of entities.
func (e *Engine) Len() int { return len(e.entities) }

// Tags returns the tag universe in display order.
func (e *Engine) Tags() []string { return slices.Clone(e.tags) }

// Selected returns the selected tags sorted.
func (e *Engine) Selected() []string {
	out := make([]string, 0, len(e.selected))
	for t := range e.selected {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// IsSelected reports whether tag is in the selection.
func (e *Engine) IsSelected(tag string) bool {
	_, ok := e.selected[tag]
	return ok
}
