// Package pkg provides the core libraries for posterboard.
//
// # Overview
//
// Posterboard turns a poster info document (poster name to metadata) into a
// board of positioned, aspect-locked cards that can be moved, resized and
// filtered by tag. The pkg directory is organized into:
//
//  1. [board] - Layout engine: entities, placement policies, tag filter
//  2. [screen] - One mounted board view with its load lifecycle and event loop
//  3. [integrations] - Poster API client
//  4. [server] - JSON HTTP API over screens
//  5. [cache], [config], [errors], [observability], [buildinfo] - Infrastructure
//
// # Architecture
//
//	Poster API (/posters_info, /posters_info2)
//	         ↓
//	    [integrations/posters] package (fetch, ordered decode)
//	         ↓
//	    [screen] package (Loading → Loaded | LoadFailed)
//	         ↓
//	    [board] package (Initialize, move, resize, filter)
//	         ↓
//	    CLI table, terminal UI or HTTP API
//
// # Quick Start
//
//	client := posters.NewClient("http://localhost:8000", posters.PathInfo2, nil, 0)
//	s := screen.New(client, screen.WithPolicy(board.PolicyTiled))
//	go s.Run(ctx)
//	s.Mount(ctx)
//	if _, err := s.Wait(ctx); err != nil {
//	    return err
//	}
//	snap, _ := s.Snapshot(ctx)
//	for _, e := range snap.Visible {
//	    fmt.Println(e.ID, e.Name, e.Size)
//	}
//
// [board]: github.com/qqqlq/itf-ensyu/pkg/board
// [screen]: github.com/qqqlq/itf-ensyu/pkg/screen
// [integrations]: github.com/qqqlq/itf-ensyu/pkg/integrations
// [server]: github.com/qqqlq/itf-ensyu/pkg/server
// [cache]: github.com/qqqlq/itf-ensyu/pkg/cache
// [config]: github.com/qqqlq/itf-ensyu/pkg/config
// [errors]: github.com/qqqlq/itf-ensyu/pkg/errors
// [observability]: github.com/qqqlq/itf-ensyu/pkg/observability
// [buildinfo]: github.com/qqqlq/itf-ensyu/pkg/buildinfo
package pkg
