package graph

import (
	"errors"
	"fmt"
)

// DecodeError reports a file that could not be opened or decoded. The graph
// state is unchanged when it is returned.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EngineError reports that the hardware output could not be started after
// the automatic retry. It is fatal for the session until Reinitialize.
type EngineError struct {
	Attempts int
	Err      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("audio output unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ErrNoTrack is returned when scheduling without a loaded track.
var ErrNoTrack = errors.New("no track loaded")

func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

func IsEngineError(err error) bool {
	var e *EngineError
	return errors.As(err, &e)
}
