// Package posters fetches poster info catalogs from the remote poster API.
//
// The API serves a JSON object keyed by poster name:
//
//	{
//	  "sunset": {"post_time": "2024/5/1 10:00:00", "tags": ["art"], "width": 600, "height": 400, "aspect_ratio": 1.5},
//	  ...
//	}
//
// Key order is significant (it assigns entity ids), so the document is
// decoded with gjson rather than into a Go map.
package posters

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/qqqlq/itf-ensyu/pkg/board"
	"github.com/qqqlq/itf-ensyu/pkg/cache"
	perrors "github.com/qqqlq/itf-ensyu/pkg/errors"
	"github.com/qqqlq/itf-ensyu/pkg/integrations"
)

// Default data source paths served by the poster API.
const (
	PathInfo  = "/posters_info"
	PathInfo2 = "/posters_info2"
)

// defaultAspectRatio is used when an entry omits aspect_ratio.
const defaultAspectRatio = 1.0

// Client fetches poster catalogs from one origin and data path.
type Client struct {
	*integrations.Client
	origin string
	path   string
}

// NewClient creates a poster API client for origin (scheme and host, e.g.
// "http://localhost:8000") and data path (e.g. PathInfo). Responses are
// cached for cacheTTL; zero disables caching.
func NewClient(origin, path string, c cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client: integrations.NewClient(c, "posters:", cacheTTL, map[string]string{"Accept": "application/json"}),
		origin: origin,
		path:   path,
	}
}

// InfoURL returns the URL of the poster info document.
func (c *Client) InfoURL() string {
	return integrations.JoinURL(c.origin, c.path)
}

// FetchCatalog downloads and decodes the poster info document.
//
// A non-2xx response or a network failure is reported as FETCH_FAILED; the
// message carries the HTTP status verbatim. An entry that is not an object
// or has a non-numeric aspect_ratio is INVALID_METADATA. Positive aspect
// ratios are not checked here; the engine rejects them on load.
func (c *Client) FetchCatalog(ctx context.Context) (board.Catalog, error) {
	return c.fetch(ctx, false)
}

// RefreshCatalog is FetchCatalog bypassing any cached response.
func (c *Client) RefreshCatalog(ctx context.Context) (board.Catalog, error) {
	return c.fetch(ctx, true)
}

func (c *Client) fetch(ctx context.Context, refresh bool) (board.Catalog, error) {
	u := c.InfoURL()
	data, _, err := c.GetBytes(ctx, u, refresh)
	if err != nil {
		var se *integrations.StatusError
		if errors.As(err, &se) {
			return nil, perrors.Wrap(perrors.ErrCodeFetchFailed, err, "HTTP error! status: %d", se.StatusCode)
		}
		return nil, perrors.Wrap(perrors.ErrCodeFetchFailed, err, "fetch %s", u)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a poster info document preserving key order.
func ParseCatalog(data []byte) (board.Catalog, error) {
	if !gjson.ValidBytes(data) {
		return nil, perrors.New(perrors.ErrCodeFetchFailed, "poster info is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, perrors.New(perrors.ErrCodeFetchFailed, "poster info must be a JSON object, got %s", doc.Type)
	}

	var (
		catalog board.Catalog
		bad     error
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		p, err := parseEntry(key.String(), value)
		if err != nil {
			bad = err
			return false
		}
		catalog = append(catalog, p)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return catalog, nil
}

func parseEntry(name string, v gjson.Result) (board.Poster, error) {
	if !v.IsObject() {
		return board.Poster{}, perrors.New(perrors.ErrCodeInvalidMetadata, "poster %q: metadata must be an object", name)
	}

	md := board.Metadata{
		PostTime:    v.Get("post_time").String(),
		AspectRatio: defaultAspectRatio,
		Width:       v.Get("width").Float(),
		Height:      v.Get("height").Float(),
	}
	if ar := v.Get("aspect_ratio"); ar.Exists() {
		if ar.Type != gjson.Number {
			return board.Poster{}, perrors.New(perrors.ErrCodeInvalidMetadata, "poster %q: aspect_ratio must be a number", name)
		}
		md.AspectRatio = ar.Float()
	}
	for _, t := range v.Get("tags").Array() {
		md.Tags = append(md.Tags, t.String())
	}
	return board.Poster{Name: name, Metadata: md}, nil
}

// ImageURL returns the reference a renderer uses to load the poster image.
func (c *Client) ImageURL(name string) (string, error) {
	if err := perrors.ValidatePosterName(name); err != nil {
		return "", err
	}
	return integrations.JoinURL(c.origin, "/poster/"+url.PathEscape(name)), nil
}
