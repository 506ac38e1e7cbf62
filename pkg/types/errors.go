package types

import (
	"errors"
	"fmt"
)

var (
	// Table errors
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")

	// Request errors
	ErrInvalidKey     = errors.New("invalid row key")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNilHandle      = errors.New("lock handle is nil")

	// a write that would move a row outside the lease state machine
	ErrIllegalTransition = fmt.Errorf("%w: illegal lease transition", ErrInvalidRequest)

	// Replication errors
	ErrNotLeader      = errors.New("node is not the leader")
	ErrUnknownCommand = errors.New("unknown command")
)

// returned by a follower for writes, carries the leader address when known
type NotLeaderError struct {
	Leader string
}

func (e *NotLeaderError) Error() string {
	if e.Leader == "" {
		return ErrNotLeader.Error()
	}
	return fmt.Sprintf("%s, leader is at %s", ErrNotLeader, e.Leader)
}

func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}

// wraps every fault raised while talking to the table
// contention is never reported this way, only transport and store failures
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
