package stage

import (
	"runtime"

	"github.com/pkg/errors"
)

// ErrInvalidWorkers is returned when the worker count does not fit the files or the machine.
var ErrInvalidWorkers = errors.New("invalid number of workers")

// ValidateWorkers checks 1 <= n <= files and n <= NumCPU.
func ValidateWorkers(n, files int) error {
	switch {
	case n < 1:
		return errors.Wrapf(ErrInvalidWorkers, "%d is less than 1", n)
	case n > files:
		return errors.Wrapf(ErrInvalidWorkers, "%d is more than the %d files to process", n, files)
	case n > 1 && n > runtime.NumCPU():
		return errors.Wrapf(ErrInvalidWorkers, "%d is more than the %d available CPUs", n, runtime.NumCPU())
	}

	return nil
}
