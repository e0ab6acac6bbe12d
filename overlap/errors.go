package overlap

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/notargets/meshoverlap/comm"
)

const (
	// ErrTypeStructural marks a run where at least one rank handed in input
	// that is not a mesh or a collection of meshes. Every rank reports it.
	ErrTypeStructural = "structural_error"

	ErrTypeCommunication = comm.ErrTypeCommunication
)

// IsStructuralError reports whether err aborted the run during the structure
// round.
func IsStructuralError(err error) bool {
	return err != nil && errors.Type(err) == ErrTypeStructural
}

func communicationError(msg string, phase comm.Phase, err error) error {
	return errors.New(msg).
		WithType(ErrTypeCommunication).
		WithTag("phase", phase.String()).
		Wrap(err)
}
