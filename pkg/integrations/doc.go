// Package integrations provides HTTP clients for the remote poster API.
//
// The [Client] type carries the shared plumbing: optional response caching
// through a [cache.Cache] backend, default headers, and mapping of non-2xx
// responses to [StatusError]. The poster API itself lives in the posters
// subpackage:
//
//	c := posters.NewClient("https://example.net", "/posters_info", cache.NewNullCache(), 0)
//	catalog, err := c.FetchCatalog(ctx)
//
// Requests are never retried: a failed fetch is reported once and the
// caller decides what to show.
//
// [cache.Cache]: github.com/qqqlq/itf-ensyu/pkg/cache.Cache
package integrations
