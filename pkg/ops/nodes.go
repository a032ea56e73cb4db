package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicklasfrahm/ringctl/pkg/pager"
)

// ErrUnknownNode is returned if the directory service does not know a node.
var ErrUnknownNode = errors.New("unknown node")

// Nodes prints the names of all active nodes, one per line.
func Nodes(ctx context.Context, options ...Option) error {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	config, err := loadConfig(opts)
	if err != nil {
		return err
	}

	directory, err := newDirectory(config, opts)
	if err != nil {
		return err
	}

	nodes, err := directory.ActiveNodes(ctx, opts.Country)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		if _, err := fmt.Fprintln(opts.Stdout, node); err != nil {
			return err
		}
	}

	return nil
}

// Country prints the country code of a node.
func Country(ctx context.Context, node string, options ...Option) error {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	config, err := loadConfig(opts)
	if err != nil {
		return err
	}

	directory, err := newDirectory(config, opts)
	if err != nil {
		return err
	}

	code, ok, err := directory.CountryCode(ctx, node)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}

	_, err = fmt.Fprintln(opts.Stdout, code)
	return err
}

// AttachPager pipes the output of the program through the configured
// pager. It must be called before anything is printed.
func AttachPager(options ...Option) error {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	config, err := loadConfig(opts)
	if err != nil {
		return err
	}

	pagerOpts := []pager.Option{pager.WithLogger(opts.Logger)}
	if config.Pager != "" {
		pagerOpts = append(pagerOpts, pager.WithCommand(config.Pager))
	}

	return pager.Attach(pagerOpts...)
}
