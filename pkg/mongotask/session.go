package mongotask

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/jzx17/gocourier/internal/retry"
)

// Session is the work provider shared by every worker: one client plus the
// read and write concern applied to commands.
type Session struct {
	client         *mongo.Client
	commandTimeout time.Duration

	mu           sync.Mutex
	readConcern  *readconcern.ReadConcern
	writeConcern *writeconcern.WriteConcern
}

// NewSession wraps an existing client. A zero commandTimeout leaves
// commands unbounded.
func NewSession(client *mongo.Client, commandTimeout time.Duration) *Session {
	return &Session{
		client:         client,
		commandTimeout: commandTimeout,
	}
}

// Connect creates a client from cfg, retrying until it answers a ping.
func Connect(ctx context.Context, cfg Config, opts ...retry.ExecutorOption) (*Session, error) {
	policy := retry.NewBackoff(cfg.RetryAttempts, cfg.RetryInterval,
		retry.WithMultiplier(cfg.RetryMultiplier),
		retry.WithMaxDelay(cfg.RetryMaxInterval))
	executor := retry.NewExecutor(policy, opts...)

	client, err := retry.Do(ctx, executor, "mongo connect", func(ctx context.Context) (*mongo.Client, error) {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize),
		)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
		return client, nil
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToConnect, err)
	}
	return NewSession(client, cfg.CommandTimeout), nil
}

// Client returns the underlying client, which may be nil
func (s *Session) Client() *mongo.Client {
	return s.client
}

// Ping checks connectivity
func (s *Session) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrNoClient
	}
	return s.client.Ping(ctx, nil)
}

// Disconnect closes the client. Call it after the engine is closed.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// ReadConcern returns a copy of the current read concern, nil for the
// server default.
func (s *Session) ReadConcern() *readconcern.ReadConcern {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readConcern == nil {
		return nil
	}
	rc := *s.readConcern
	return &rc
}

// SetReadConcern replaces the read concern. The session keeps its own copy.
func (s *Session) SetReadConcern(rc *readconcern.ReadConcern) {
	if rc != nil {
		c := *rc
		rc = &c
	}
	s.mu.Lock()
	s.readConcern = rc
	s.mu.Unlock()
}

// WriteConcern returns a copy of the current write concern, nil for the
// server default.
func (s *Session) WriteConcern() *writeconcern.WriteConcern {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeConcern == nil {
		return nil
	}
	wc := *s.writeConcern
	return &wc
}

// SetWriteConcern replaces the write concern. The session keeps its own copy.
func (s *Session) SetWriteConcern(wc *writeconcern.WriteConcern) {
	if wc != nil {
		c := *wc
		wc = &c
	}
	s.mu.Lock()
	s.writeConcern = wc
	s.mu.Unlock()
}

// database returns a handle carrying the current concerns
func (s *Session) database(name string) *mongo.Database {
	opts := options.Database()
	if rc := s.ReadConcern(); rc != nil {
		opts.SetReadConcern(rc)
	}
	if wc := s.WriteConcern(); wc != nil {
		opts.SetWriteConcern(wc)
	}
	return s.client.Database(name, opts)
}
