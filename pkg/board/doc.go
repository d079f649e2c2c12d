// Package board implements the poster layout and filtering engine.
//
// An [Engine] turns a fetched [Catalog] (poster name → metadata, in source
// order) into positioned, aspect-ratio-locked [Entity] values and keeps that
// state consistent while the user drags cards, resizes them and toggles tag
// filters.
//
// # Placement
//
// [Engine.Initialize] gives every card the base width of 300 and a height
// derived from its aspect ratio. Positions come from one of two policies:
//
//   - Random scatter, when a viewport is supplied: each card starts at a
//     uniform position inside the viewport.
//   - Tiled grid, when no viewport is supplied: three columns, 420 apart
//     horizontally and 550 apart vertically, starting at (50, 100).
//
// # Aspect lock
//
// Height is never set directly. [Engine.ApplyResize] takes a width and
// derives the height from the entity's immutable aspect ratio, so
// width/height equals the aspect ratio after every mutation.
//
// # Filtering
//
// The tag universe is the sorted union of all entity tags, computed once per
// successful load. The selection is an OR filter: with an empty selection
// every entity is visible, otherwise an entity is visible when any of its
// tags is selected. [Engine.RemoveTagFromUniverse] hides a filter chip
// without touching entity tags.
//
// # Concurrency
//
// An Engine is not safe for concurrent use. It is designed to be owned by a
// single event loop (see package screen).
package board
