package mongotask

import "errors"

var (
	ErrFailedToConnect = errors.New("failed to connect to mongo")
	ErrNoClient        = errors.New("session has no mongo client")
	ErrInvalidCommand  = errors.New("invalid mongo command")
)
