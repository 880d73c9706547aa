package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/masterbase/platform/internal/domain"
)

// Spool is a demo upload staged on local disk. It reads from the start of the
// staged bytes; Close removes the file.
type Spool struct {
	f    *os.File
	size int64
}

// Stage copies r into a temp file under the store's spool directory, so a slow
// client never holds a database connection. On error nothing is left behind.
func (s *LargeObjectStore) Stage(ctx context.Context, r io.Reader) (*Spool, error) {
	return stage(ctx, s.spoolDir, r)
}

func stage(ctx context.Context, dir string, r io.Reader) (*Spool, error) {
	f, err := os.CreateTemp(dir, "demo-*.spool")
	if err != nil {
		return nil, domain.ErrBlobWriteFailed(fmt.Errorf("create spool file: %w", err))
	}

	n, err := io.CopyBuffer(f, &ctxReader{ctx: ctx, r: r}, make([]byte, chunkSize))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, domain.ErrBlobWriteFailed(fmt.Errorf("stage demo after %d bytes: %w", n, err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, domain.ErrBlobWriteFailed(fmt.Errorf("rewind spool file: %w", err))
	}
	return &Spool{f: f, size: n}, nil
}

func (s *Spool) Read(p []byte) (int, error) { return s.f.Read(p) }

// Size is the number of staged bytes.
func (s *Spool) Size() int64 { return s.size }

// Close closes and removes the staged file.
func (s *Spool) Close() error {
	closeErr := s.f.Close()
	if err := os.Remove(s.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return closeErr
}
