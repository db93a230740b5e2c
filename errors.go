package umap

import "github.com/pkg/errors"

// ErrInvalidArgument is returned for malformed inputs: bad shapes, unknown
// option keys, unrecognized enum values and out-of-range options. Use
// errors.Is to match it.
var ErrInvalidArgument = errors.New("invalid argument")

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
