package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2beens/blogportal/internal/backend"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAPI struct {
	postsCalls atomic.Int32
	postCalls  atomic.Int32
	tagsCalls  atomic.Int32
}

func (a *countingAPI) router(t *testing.T) *mux.Router {
	write := func(w http.ResponseWriter, status int, body interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	}

	r := mux.NewRouter()
	r.HandleFunc("/posts", func(w http.ResponseWriter, req *http.Request) {
		a.postsCalls.Add(1)
		write(w, http.StatusOK, map[string]interface{}{
			"posts": []map[string]interface{}{{"id": 1, "slug": "first", "title": "First " + req.URL.Query().Get("tag")}},
			"total": 1,
		})
	})
	r.HandleFunc("/posts/tags", func(w http.ResponseWriter, req *http.Request) {
		a.tagsCalls.Add(1)
		write(w, http.StatusOK, map[string]interface{}{
			"tags": []map[string]interface{}{{"id": 1, "name": "Go", "slug": "go", "post_count": 3}},
		})
	})
	r.HandleFunc("/posts/{slug}", func(w http.ResponseWriter, req *http.Request) {
		a.postCalls.Add(1)
		if mux.Vars(req)["slug"] == "missing" {
			write(w, http.StatusNotFound, map[string]string{"error": "Post not found"})
			return
		}
		write(w, http.StatusOK, map[string]interface{}{"id": 1, "slug": mux.Vars(req)["slug"], "content": "<p>hi</p>"})
	})
	return r
}

func newTestPostsCache(t *testing.T, c Cache) (*PostsCache, *countingAPI) {
	t.Helper()
	api := &countingAPI{}
	server := httptest.NewServer(api.router(t))
	t.Cleanup(server.Close)
	return NewPostsCache(backend.NewClient(server.URL, time.Second, nil), c, time.Minute), api
}

func TestPostsCache(t *testing.T) {
	for name, c := range map[string]Cache{
		"map":  NewMapCache(),
		"free": NewFreeCache(1),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			postsCache, api := newTestPostsCache(t, c)

			for i := 0; i < 3; i++ {
				page, err := postsCache.Posts(ctx, backend.PostsQuery{Page: 1, Tag: "go"})
				require.NoError(t, err)
				require.Len(t, page.Posts, 1)
				assert.Equal(t, "First go", page.Posts[0].Title)
			}
			assert.Equal(t, int32(1), api.postsCalls.Load())

			// different query, different entry
			_, err := postsCache.Posts(ctx, backend.PostsQuery{Page: 2})
			require.NoError(t, err)
			assert.Equal(t, int32(2), api.postsCalls.Load())

			for i := 0; i < 2; i++ {
				post, err := postsCache.Post(ctx, "first")
				require.NoError(t, err)
				assert.Equal(t, "<p>hi</p>", post.Content)

				tags, err := postsCache.Tags(ctx)
				require.NoError(t, err)
				require.Len(t, tags, 1)
				assert.Equal(t, 3, tags[0].PostCount)
			}
			assert.Equal(t, int32(1), api.postCalls.Load())
			assert.Equal(t, int32(1), api.tagsCalls.Load())

			postsCache.Invalidate()
			_, err = postsCache.Posts(ctx, backend.PostsQuery{Page: 1, Tag: "go"})
			require.NoError(t, err)
			assert.Equal(t, int32(3), api.postsCalls.Load())
		})
	}
}

func TestPostsCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	mapCache := NewMapCache()
	postsCache, api := newTestPostsCache(t, mapCache)

	for i := 0; i < 2; i++ {
		post, err := postsCache.Post(ctx, "missing")
		assert.Nil(t, post)
		assert.EqualError(t, err, "Post not found")
		assert.Equal(t, http.StatusNotFound, backend.StatusOf(err))
	}
	assert.Equal(t, int32(2), api.postCalls.Load())
	assert.Equal(t, 0, mapCache.Len())
}

func TestPostsCache_CorruptEntryIsRefetched(t *testing.T) {
	ctx := context.Background()
	mapCache := NewMapCache()
	postsCache, api := newTestPostsCache(t, mapCache)
	mapCache.Set("post::first", []byte("{garbage"), time.Minute)

	post, err := postsCache.Post(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", post.Slug)
	assert.Equal(t, int32(1), api.postCalls.Load())
}
