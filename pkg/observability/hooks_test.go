package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	b := NoopBoardHooks{}
	b.OnLoadStart(ctx, "default")
	b.OnLoadComplete(ctx, "default", 12, time.Second, nil)
	b.OnMutation(ctx, "default", "move", nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "posters")
	c.OnCacheMiss(ctx, "posters")
	c.OnCacheSet(ctx, "posters", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "example.com", "/posters_info")
	h.OnResponse(ctx, "GET", "example.com", "/posters_info", 200, time.Second)
	h.OnError(ctx, "GET", "example.com", "/posters_info", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Board().(NoopBoardHooks); !ok {
		t.Error("Board() should return NoopBoardHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customBoard := &testBoardHooks{}
	SetBoardHooks(customBoard)
	if Board() != customBoard {
		t.Error("SetBoardHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Board().(NoopBoardHooks); !ok {
		t.Error("Reset() should restore NoopBoardHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testBoardHooks{}
	SetBoardHooks(custom)
	SetBoardHooks(nil)

	if Board() != custom {
		t.Error("SetBoardHooks(nil) should be ignored")
	}

	Reset()
}

type testBoardHooks struct{ NoopBoardHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
