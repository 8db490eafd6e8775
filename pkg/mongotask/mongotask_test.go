package mongotask

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/jzx17/gocourier/internal/retry"
	"github.com/jzx17/gocourier/internal/testutils"
	"github.com/jzx17/gocourier/pkg/handler"
	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

func newRegistry(t *testing.T) *handler.Registry[*Session] {
	t.Helper()
	reg := handler.NewRegistry[*Session]()
	require.NoError(t, Register(reg))
	return reg
}

func run(t *testing.T, reg *handler.Registry[*Session], s *Session, typ task.Type, payload any) (any, error) {
	t.Helper()
	h, err := reg.Lookup(typ)
	require.NoError(t, err)
	return h.Handle(context.Background(), s, payload)
}

// unreachableClient never finds a server; operations fail after the
// selection timeout.
func unreachableClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(200 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestRegister(t *testing.T) {
	reg := newRegistry(t)
	assert.Equal(t, len(Types()), reg.Len())
	assert.NoError(t, reg.Require(Types()...))

	// a second install collides with the first
	assert.Error(t, Register(reg))
}

func TestConcerns(t *testing.T) {
	reg := newRegistry(t)
	s := NewSession(nil, 0)

	rc, err := run(t, reg, s, TypeGetReadConcern, GetReadConcern{})
	require.NoError(t, err)
	assert.Nil(t, rc)

	_, err = run(t, reg, s, TypeSetReadConcern, SetReadConcern{Concern: readconcern.Majority()})
	require.NoError(t, err)
	_, err = run(t, reg, s, TypeSetWriteConcern, &SetWriteConcern{Concern: writeconcern.Majority()})
	require.NoError(t, err)

	rc, err = run(t, reg, s, TypeGetReadConcern, GetReadConcern{})
	require.NoError(t, err)
	require.IsType(t, &readconcern.ReadConcern{}, rc)
	assert.Equal(t, "majority", rc.(*readconcern.ReadConcern).Level)

	wc, err := run(t, reg, s, TypeGetWriteConcern, GetWriteConcern{})
	require.NoError(t, err)
	require.IsType(t, &writeconcern.WriteConcern{}, wc)
	assert.Equal(t, "majority", wc.(*writeconcern.WriteConcern).W)

	// callers get copies
	rc.(*readconcern.ReadConcern).Level = "local"
	assert.Equal(t, "majority", s.ReadConcern().Level)

	_, err = run(t, reg, s, TypeSetReadConcern, SetReadConcern{})
	require.NoError(t, err)
	assert.Nil(t, s.ReadConcern())
}

func TestWrongPayloadVariant(t *testing.T) {
	reg := newRegistry(t)
	s := NewSession(nil, 0)

	_, err := run(t, reg, s, TypeSetReadConcern, GetReadConcern{})
	assert.ErrorIs(t, err, types.ErrPayloadType)
	_, err = run(t, reg, s, TypeCommand, bson.D{{Key: "ping", Value: 1}})
	assert.ErrorIs(t, err, types.ErrPayloadType)
}

func TestCommand_Validation(t *testing.T) {
	reg := newRegistry(t)

	_, err := run(t, reg, NewSession(nil, 0), TypeCommand, Command{Database: "admin", Command: bson.D{{Key: "ping", Value: 1}}})
	assert.ErrorIs(t, err, ErrNoClient)

	s := NewSession(unreachableClient(t), time.Second)
	_, err = run(t, reg, s, TypeCommand, Command{Command: bson.D{{Key: "ping", Value: 1}}})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	_, err = run(t, reg, s, TypeCommand, Command{Database: "admin"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCommand_ServerUnavailable(t *testing.T) {
	reg := newRegistry(t)
	s := NewSession(unreachableClient(t), 5*time.Second)

	out, err := run(t, reg, s, TypeCommand, Command{Database: "admin", Command: bson.D{{Key: "ping", Value: 1}}})
	assert.Nil(t, out)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestCommand_Live(t *testing.T) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL not set")
	}

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	cfg.RetryAttempts = 1

	s, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Disconnect(context.Background())
	require.NoError(t, s.Ping(context.Background()))

	reg := newRegistry(t)
	out, err := run(t, reg, s, TypeCommand, Command{Database: "admin", Command: bson.D{{Key: "ping", Value: 1}}})
	require.NoError(t, err)

	reply, ok := out.(bson.Raw)
	require.True(t, ok)
	ok1, err := reply.LookupErr("ok")
	require.NoError(t, err)
	assert.Equal(t, 1.0, ok1.Double())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MONGODB_URL", "mongodb://db.internal:27017")
	t.Setenv("MONGODB_RETRY_ATTEMPTS", "5")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.internal:27017", cfg.ConnectionURL)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint64(100), cfg.MaxPoolSize)
}

func TestConfigFromEnv_MissingURL(t *testing.T) {
	t.Setenv("MONGODB_URL", "")
	os.Unsetenv("MONGODB_URL")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestConnect_GivesUp(t *testing.T) {
	cfg := Config{
		ConnectionURL:          "mongodb://127.0.0.1:1",
		ServerSelectionTimeout: 100 * time.Millisecond,
		ConnectTimeout:         100 * time.Millisecond,
		MaxPoolSize:            1,
		RetryAttempts:          2,
		RetryInterval:          10 * time.Millisecond,
	}

	s, err := Connect(context.Background(), cfg, retry.WithLogger(testutils.DiscardLogger()))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrFailedToConnect)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestSession_NoClient(t *testing.T) {
	s := NewSession(nil, 0)
	assert.Nil(t, s.Client())
	assert.ErrorIs(t, s.Ping(context.Background()), ErrNoClient)
	assert.NoError(t, s.Disconnect(context.Background()))
}
