package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// PostsCache serves the anonymous, public post reads from a cache. Any post
// write through the portal must call Invalidate.
type PostsCache struct {
	api   *backend.Client
	cache Cache
	ttl   time.Duration
}

func NewPostsCache(api *backend.Client, cache Cache, ttl time.Duration) *PostsCache {
	return &PostsCache{
		api:   api,
		cache: cache,
		ttl:   ttl,
	}
}

func (pc *PostsCache) Posts(ctx context.Context, q backend.PostsQuery) (*backend.PostsPage, error) {
	cacheKey := fmt.Sprintf("posts::%d::%d::%s::%s", q.Page, q.PerPage, q.Status, q.Tag)
	page := &backend.PostsPage{}
	err := pc.cached(ctx, cacheKey, page, func(ctx context.Context) (interface{}, error) {
		return pc.api.Posts(ctx, "", q)
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (pc *PostsCache) Post(ctx context.Context, slug string) (*backend.Post, error) {
	post := &backend.Post{}
	err := pc.cached(ctx, "post::"+slug, post, func(ctx context.Context) (interface{}, error) {
		return pc.api.Post(ctx, "", slug)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (pc *PostsCache) Tags(ctx context.Context) ([]backend.Tag, error) {
	var tags []backend.Tag
	err := pc.cached(ctx, "tags", &tags, func(ctx context.Context) (interface{}, error) {
		return pc.api.Tags(ctx)
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (pc *PostsCache) Invalidate() {
	pc.cache.Clear()
	log.Debugln("posts cache cleared")
}

func (pc *PostsCache) cached(
	ctx context.Context,
	cacheKey string,
	out interface{},
	fetch func(ctx context.Context) (interface{}, error),
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsCache.get")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if cachedBytes, found := pc.cache.Get(cacheKey); found {
		if err := json.Unmarshal(cachedBytes, out); err == nil {
			log.Tracef("posts cache hit: %s", cacheKey)
			span.SetStatus(codes.Ok, "cache-hit")
			return nil
		} else {
			log.Errorf("posts cache, unmarshal %s: %s", cacheKey, err)
		}
	}

	fetched, err := fetch(ctx)
	if err != nil {
		return err
	}

	fetchedBytes, err := json.Marshal(fetched)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cacheKey, err)
	}
	if !pc.cache.Set(cacheKey, fetchedBytes, pc.ttl) {
		log.Debugf("posts cache, %s not cached", cacheKey)
	}

	span.SetStatus(codes.Ok, "cache-miss")
	return json.Unmarshal(fetchedBytes, out)
}
