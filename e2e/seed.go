package e2e

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Ryuzii/FerraEura/internal/datalayer"
	"github.com/Ryuzii/FerraEura/internal/generator"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RandomSnowFlakeGenerator struct {
	counter uint64
}

func (g *RandomSnowFlakeGenerator) Next() (string, error) {
	const min = 1e17
	atomic.CompareAndSwapUint64(&g.counter, 0, min)
	id := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%d", id), nil
}

var _ generator.Generator[string] = (*RandomSnowFlakeGenerator)(nil)

// SeedStates builds n saved sessions, each in its own guild with one track
// playing and one queued.
func SeedStates(t *testing.T, n int, node string) map[string]session.State {
	t.Helper()
	guildIDGen := RandomSnowFlakeGenerator{}
	states := make(map[string]session.State, n)
	for i := range n {
		guildID, _ := guildIDGen.Next()
		current := protocol.Track{
			Encoded: fmt.Sprintf("noise-%d", i),
			Info:    protocol.TrackInfo{Identifier: fmt.Sprintf("noise-%d", i), Title: fmt.Sprintf("Noise %d", i), Length: 180_000},
		}
		states[guildID] = session.State{
			GuildID: guildID,
			Node:    node,
			Voice: session.VoiceInfo{
				SessionID: "voice-" + guildID,
				ChannelID: "vc-" + guildID,
				Token:     "token",
				Endpoint:  "endpoint.discord.media",
			},
			Connected: true,
			Volume:    100,
			Loop:      session.LoopNone,
			Playing:   true,
			Position:  int64(i) * 1000,
			Current:   &current,
			Queue:     []protocol.Track{{Encoded: fmt.Sprintf("next-%d", i), Info: protocol.TrackInfo{Title: "Next"}}},
		}
	}
	return states
}

var (
	postgresOnce      sync.Once
	postgresContainer *postgres.PostgresContainer
	connStr           string
	postgresErr       error
	postgresWG        sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()

	postgresOnce.Do(func() {
		ctx := context.Background()
		postgresContainer, postgresErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("ferraeura"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if postgresErr != nil {
			return
		}
		connStr, postgresErr = postgresContainer.ConnectionString(ctx)
		if postgresErr != nil {
			return
		}

		var pool *pgxpool.Pool
		pool, postgresErr = pgxpool.New(ctx, connStr)
		if postgresErr != nil {
			return
		}
		defer pool.Close()

		postgresErr = datalayer.MigratePostgres(pool)
	})

	if postgresErr != nil {
		t.Fatalf("failed to start postgres container: %v", postgresErr)
	}
	postgresWG.Add(1)
	t.Cleanup(postgresWG.Done)

	return connStr
}

// GetPool opens a pool on the shared database. It performs no
// modifications or migrations on the database schema.
func GetPool(t *testing.T, connStr string) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TerminatePostgresForE2E() {
	postgresWG.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}

var (
	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisOpts      *goredis.Options
	redisErr       error
	redisWG        sync.WaitGroup
)

// UseRedis is UsePostgres for Redis. Every call gets its own client on the
// shared container.
func UseRedis(t *testing.T) *goredis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7")
		if redisErr != nil {
			return
		}
		var url string
		url, redisErr = redisContainer.ConnectionString(ctx)
		if redisErr != nil {
			return
		}
		redisOpts, redisErr = goredis.ParseURL(url)
	})

	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}
	redisWG.Add(1)
	t.Cleanup(redisWG.Done)

	client := goredis.NewClient(redisOpts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TerminateRedisForE2E() {
	redisWG.Wait()
	if redisContainer != nil {
		err := redisContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}
