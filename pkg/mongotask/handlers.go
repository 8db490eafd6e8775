package mongotask

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/jzx17/gocourier/pkg/handler"
	"github.com/jzx17/gocourier/pkg/task"
)

// Task types handled against a Session
const (
	TypeCommand         task.Type = "command"
	TypeGetReadConcern  task.Type = "get_read_concern"
	TypeGetWriteConcern task.Type = "get_write_concern"
	TypeSetReadConcern  task.Type = "set_read_concern"
	TypeSetWriteConcern task.Type = "set_write_concern"
)

// Command runs a database command. The result is the raw reply document.
type Command struct {
	Database string
	Command  any
}

// GetReadConcern returns the session read concern
type GetReadConcern struct{}

// GetWriteConcern returns the session write concern
type GetWriteConcern struct{}

// SetReadConcern replaces the session read concern. A nil Concern restores
// the server default.
type SetReadConcern struct {
	Concern *readconcern.ReadConcern
}

// SetWriteConcern replaces the session write concern. A nil Concern
// restores the server default.
type SetWriteConcern struct {
	Concern *writeconcern.WriteConcern
}

// Types lists every task type installed by Register
func Types() []task.Type {
	return []task.Type{
		TypeCommand,
		TypeGetReadConcern,
		TypeGetWriteConcern,
		TypeSetReadConcern,
		TypeSetWriteConcern,
	}
}

// Register installs the session handlers into reg
func Register(reg *handler.Registry[*Session]) error {
	return errors.Join(
		reg.Register(TypeCommand, handler.Typed(runCommand)),
		reg.Register(TypeGetReadConcern, handler.Typed(getReadConcern)),
		reg.Register(TypeGetWriteConcern, handler.Typed(getWriteConcern)),
		reg.Register(TypeSetReadConcern, handler.Typed(setReadConcern)),
		reg.Register(TypeSetWriteConcern, handler.Typed(setWriteConcern)),
	)
}

func runCommand(ctx context.Context, s *Session, cmd Command) (any, error) {
	if s.client == nil {
		return nil, ErrNoClient
	}
	if cmd.Database == "" {
		return nil, fmt.Errorf("%w: database is empty", ErrInvalidCommand)
	}
	if cmd.Command == nil {
		return nil, fmt.Errorf("%w: command document is nil", ErrInvalidCommand)
	}

	if s.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}

	reply, err := s.database(cmd.Database).RunCommand(ctx, cmd.Command).Raw()
	if err != nil {
		return nil, fmt.Errorf("run command on %s: %w", cmd.Database, err)
	}
	return reply, nil
}

func getReadConcern(_ context.Context, s *Session, _ GetReadConcern) (any, error) {
	return s.ReadConcern(), nil
}

func getWriteConcern(_ context.Context, s *Session, _ GetWriteConcern) (any, error) {
	return s.WriteConcern(), nil
}

func setReadConcern(_ context.Context, s *Session, in SetReadConcern) (any, error) {
	s.SetReadConcern(in.Concern)
	return nil, nil
}

func setWriteConcern(_ context.Context, s *Session, in SetWriteConcern) (any, error) {
	s.SetWriteConcern(in.Concern)
	return nil, nil
}
