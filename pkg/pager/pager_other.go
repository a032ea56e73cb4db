//go:build !unix

package pager

func attach(opts *Options) error {
	opts.Logger.Debug().Err(ErrUnsupported).Msg("Skipping pager")
	return nil
}
