package tasks

import (
	"errors"
	"fmt"

	"github.com/lysyi3m/linksift/app/database"
)

// ErrNoContent is returned by the embed step for a link that has nothing to
// embed. It does not consume a retry.
var ErrNoContent = errors.New("link has no content to embed")

// StepError is a recorded failure of a pipeline step. Terminal is set when
// the failure used up the link's retries and the link is now failed.
type StepError struct {
	Step     database.Step
	LinkID   int64
	Terminal bool
	Err      error
}

func (e *StepError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("%s of link %d failed permanently: %v", e.Step, e.LinkID, e.Err)
	}
	return fmt.Sprintf("%s of link %d failed: %v", e.Step, e.LinkID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
