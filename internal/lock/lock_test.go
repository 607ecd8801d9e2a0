package lock

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cg-order-portal/internal/domain"
)

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "submission:cust001:order-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "submission:cust001:order-1")
	assert.ErrorIs(t, err, domain.ErrLocked)

	other, err := locker.Acquire(ctx, "submission:cust001:order-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.Acquire(ctx, "submission:cust001:order-1")
	require.NoError(t, err)
	again()
}

func TestNewRedisLockerBadURL(t *testing.T) {
	_, err := NewRedisLocker(context.Background(), domain.CacheConfig{RedisURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	if os.Getenv("CGADMIN_INTEGRATION") != "1" {
		t.Skip("set CGADMIN_INTEGRATION=1 to run Redis integration tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	locker, err := NewRedisLocker(ctx, domain.CacheConfig{
		RedisURL: fmt.Sprintf("redis://%s:%s/0", host, port.Port()),
		LockTTL:  time.Minute,
	}, logger)
	require.NoError(t, err)
	defer locker.Close()

	release, err := locker.Acquire(ctx, "submission:cust001:order-1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "submission:cust001:order-1")
	assert.ErrorIs(t, err, domain.ErrLocked)

	ttl, err := locker.client.TTL(ctx, keyPrefix+"submission:cust001:order-1").Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	release()
	_, err = locker.client.Get(ctx, keyPrefix+"submission:cust001:order-1").Result()
	assert.ErrorIs(t, err, redis.Nil)

	// a stale release must not drop a lock taken by someone else
	again, err := locker.Acquire(ctx, "submission:cust001:order-1")
	require.NoError(t, err)
	release()
	_, err = locker.Acquire(ctx, "submission:cust001:order-1")
	assert.ErrorIs(t, err, domain.ErrLocked)
	again()
}
