package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	sessionKeyPrefix = "blogportal-session||"
	clientsSetKey    = "blogportal-sessions"
)

// Store is the token store: it persists the session of a client and
// nothing else.
type Store interface {
	Load(ctx context.Context, clientID string) (*Session, error)
	Save(ctx context.Context, clientID string, s *Session) error
	Clear(ctx context.Context, clientID string) error
}

var _ Store = (*RedisStore)(nil)
var _ Store = (*MemoryStore)(nil)

type RedisStore struct {
	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (rs *RedisStore) Load(ctx context.Context, clientID string) (*Session, error) {
	cmd := rs.redisClient.Get(ctx, sessionKeyPrefix+clientID)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return decodeSession([]byte(cmd.Val()))
}

func (rs *RedisStore) Save(ctx context.Context, clientID string, s *Session) error {
	sessionJson, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := rs.redisClient.Set(ctx, sessionKeyPrefix+clientID, string(sessionJson), rs.ttl).Err(); err != nil {
		return err
	}

	// track client for the janitor
	return rs.redisClient.SAdd(ctx, clientsSetKey, clientID).Err()
}

func (rs *RedisStore) Clear(ctx context.Context, clientID string) error {
	if err := rs.redisClient.Del(ctx, sessionKeyPrefix+clientID).Err(); err != nil {
		return err
	}
	return rs.redisClient.SRem(ctx, clientsSetKey, clientID).Err()
}

// ScanAndClean runs through all tracked clients and removes sessions that
// either expired in redis already or whose token expired.
func (rs *RedisStore) ScanAndClean(ctx context.Context) int {
	cmd := rs.redisClient.SMembers(ctx, clientsSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("!!! session store, scan and clean, get clients: %s", err)
		return 0
	}

	clientIDs := cmd.Val()
	if len(clientIDs) == 0 {
		log.Debugln("=> session store, scan and clean abort, no sessions")
		return 0
	}

	log.Debugf("=> session store, scan and clean [%d sessions] start ...", len(clientIDs))
	cleaned := 0
	for _, clientID := range clientIDs {
		s, err := rs.Load(ctx, clientID)
		switch {
		case errors.Is(err, ErrNoSession):
			// value already gone by TTL, only the set entry is left
			if err := rs.redisClient.SRem(ctx, clientsSetKey, clientID).Err(); err != nil {
				log.Errorf("=> session store, untrack client %s: %s", clientID, err)
				continue
			}
			cleaned++
		case err != nil:
			log.Errorf("=> session store, scan and clean client %s: %s", clientID, err)
		case s.Valid(rs.now()) != nil:
			if err := rs.Clear(ctx, clientID); err != nil {
				log.Errorf("=> session store, clean client %s: %s", clientID, err)
				continue
			}
			cleaned++
		}
	}

	return cleaned
}

type MemoryStore struct {
	cache      *freecache.Cache
	ttlSeconds int
}

// NewMemoryStore creates an in-process store of roughly sizeMB megabytes.
func NewMemoryStore(sizeMB int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache:      freecache.NewCache(sizeMB * 1024 * 1024),
		ttlSeconds: int(ttl.Seconds()),
	}
}

func (ms *MemoryStore) Load(_ context.Context, clientID string) (*Session, error) {
	sessionJson, err := ms.cache.Get([]byte(clientID))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return decodeSession(sessionJson)
}

func (ms *MemoryStore) Save(_ context.Context, clientID string, s *Session) error {
	sessionJson, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return ms.cache.Set([]byte(clientID), sessionJson, ms.ttlSeconds)
}

func (ms *MemoryStore) Clear(_ context.Context, clientID string) error {
	ms.cache.Del([]byte(clientID))
	return nil
}

func decodeSession(raw []byte) (*Session, error) {
	s := &Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %s", ErrInvalidSession, err)
	}
	return s, nil
}
