package agent

import "fmt"

// PostProcessError is a crop, stitch, compose or write failure on the
// agent side.
type PostProcessError struct {
	Action Action
	Err    error
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Action, e.Err)
}

func (e *PostProcessError) Unwrap() error {
	return e.Err
}
