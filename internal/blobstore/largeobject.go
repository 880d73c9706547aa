// Package blobstore persists demo captures as PostgreSQL large objects. A blob is
// created inside the caller's transaction, so the reference and the row that
// points at it commit or roll back together.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
)

// chunkSize bounds how much of a capture is held in memory at once.
const chunkSize = 256 << 10

// LargeObjectStore writes and reads demo blobs.
type LargeObjectStore struct {
	pool     *pgxpool.Pool
	spoolDir string
}

// NewLargeObjectStore creates a store reading through pool. Uploads are staged
// under spoolDir; "" means the system temp directory.
func NewLargeObjectStore(pool *pgxpool.Pool, spoolDir string) *LargeObjectStore {
	return &LargeObjectStore{pool: pool, spoolDir: spoolDir}
}

// Write streams r into a new large object owned by tx and returns its oid and size.
// Any read or write error, including ctx cancellation, is BlobWriteFailed; the caller
// must roll tx back, which also discards the partial object.
func (s *LargeObjectStore) Write(ctx context.Context, tx pgx.Tx, r io.Reader) (uint32, int64, error) {
	los := tx.LargeObjects()
	oid, err := los.Create(ctx, 0)
	if err != nil {
		return 0, 0, domain.ErrBlobWriteFailed(fmt.Errorf("create large object: %w", err))
	}
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		return 0, 0, domain.ErrBlobWriteFailed(fmt.Errorf("open large object %d: %w", oid, err))
	}

	n, copyErr := io.CopyBuffer(obj, &ctxReader{ctx: ctx, r: r}, make([]byte, chunkSize))
	closeErr := obj.Close()
	if copyErr != nil {
		return 0, 0, domain.ErrBlobWriteFailed(fmt.Errorf("stream demo after %d bytes: %w", n, copyErr))
	}
	if closeErr != nil {
		return 0, 0, domain.ErrBlobWriteFailed(fmt.Errorf("close large object %d: %w", oid, closeErr))
	}
	return oid, n, nil
}

// Open returns a reader over a stored blob. The reader holds a read-only
// transaction until closed.
func (s *LargeObjectStore) Open(ctx context.Context, oid uint32) (io.ReadCloser, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	los := tx.LargeObjects()
	obj, err := los.Open(ctx, oid, pgx.LargeObjectModeRead)
	if err != nil {
		_ = tx.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedObject {
			return nil, domain.ErrNotFound("demo blob", fmt.Sprint(oid))
		}
		return nil, fmt.Errorf("open large object %d: %w", oid, err)
	}
	return &blobReader{ctx: ctx, tx: tx, obj: obj}, nil
}

type blobReader struct {
	ctx context.Context
	tx  pgx.Tx
	obj *pgx.LargeObject
}

func (b *blobReader) Read(p []byte) (int, error) { return b.obj.Read(p) }

func (b *blobReader) Close() error {
	closeErr := b.obj.Close()
	if err := b.tx.Rollback(b.ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return closeErr
}

// ctxReader stops a copy as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
