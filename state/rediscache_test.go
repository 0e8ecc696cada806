package state

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentmesh/substrate/component"
)

var (
	redisClient    *redis.Client
	redisContainer testcontainers.Container
	skipRedisTests bool
)

func setupRedis() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		redisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		skipRedisTests = true
		return
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		skipRedisTests = true
		return
	}
	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		skipRedisTests = true
		return
	}

	redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		skipRedisTests = true
	}
}

func TestMain(m *testing.M) {
	setupRedis()
	m.Run()
}

func getCachedStore(t *testing.T) (*CachedStore, Store) {
	t.Helper()
	if skipRedisTests {
		t.Skip("Docker not available, skipping Redis cache test")
	}
	backing := NewMemoryStore()
	return NewCachedStore(backing, redisClient, "test-cache:", 0), backing
}

func TestCachedStorePopulatesOnMiss(t *testing.T) {
	cache, backing := getCachedStore(t)
	ctx := context.Background()
	key := Key{Scope: component.Global(), Name: "greeting"}
	require.NoError(t, backing.Set(ctx, key, "hello"))

	value, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", value)

	raw, redisErr := redisClient.Get(ctx, cache.cacheKey(key)).Result()
	require.NoError(t, redisErr)
	require.Equal(t, `"hello"`, raw)
}

func TestCachedStoreInvalidatesOnSet(t *testing.T) {
	cache, _ := getCachedStore(t)
	ctx := context.Background()
	key := Key{Scope: component.Global(), Name: "counter"}

	require.NoError(t, cache.Set(ctx, key, 1))
	_, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, cache.Set(ctx, key, 2))
	value, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 2, value)
}

func TestCachedStoreInvalidatesOnDelete(t *testing.T) {
	cache, _ := getCachedStore(t)
	ctx := context.Background()
	key := Key{Scope: component.Global(), Name: "ephemeral"}
	require.NoError(t, cache.Set(ctx, key, "x"))
	_, _, err := cache.Get(ctx, key)
	require.NoError(t, err)

	existed, err := cache.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, existed)

	_, found, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)
}
