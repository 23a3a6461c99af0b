// Package fetcher reads local source tables: CSV and XLSX files, with
// declared charset decoding for legacy book-extracted data and
// context-bounded reads so a bad file can never stall a run.
package fetcher

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// FileOptions configures how a source file is opened.
type FileOptions struct {
	// Encoding is an IANA charset name (e.g. "latin1", "windows-1252")
	// declared by the source descriptor. Empty means UTF-8.
	Encoding string
}

// Open opens a local file for reading. Reads fail once ctx is done, and
// a declared legacy encoding is transparently decoded to UTF-8.
func Open(ctx context.Context, path string, opts FileOptions) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}

	var r io.Reader = f
	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			f.Close()
			return nil, eris.Wrapf(err, "fetcher: unsupported encoding %q", opts.Encoding)
		}
		r = enc.NewDecoder().Reader(f)
	}

	return &ctxReadCloser{ctx: ctx, r: r, c: f}, nil
}

// ctxReadCloser fails reads once the context is cancelled or past its
// deadline.
type ctxReadCloser struct {
	ctx context.Context
	r   io.Reader
	c   io.Closer
}

func (c *ctxReadCloser) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "fetcher: read cancelled")
	}
	return c.r.Read(p)
}

func (c *ctxReadCloser) Close() error { return c.c.Close() }
