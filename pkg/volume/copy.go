package volume

import (
	"context"

	"go.uber.org/multierr"
)

// Copy reads the volume described by in and writes it out as the shards
// described by out. Both sides are closed whatever happens.
func Copy(ctx context.Context, in, out []Descriptor, f Factory, options ...Option) (err error) {
	r, err := NewReader(in, f, options...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, r.Close()) }()

	w, err := NewWriter(out, f, options...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, w.Close()) }()

	return w.WriteFrom(ctx, r)
}
