package blobstore

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CachingStore wraps a BlobStore and adds block-level read caching, for
// remote backends where every ReadAt is a network round trip. Fetches of
// missing blocks can be rate limited to stay under backend request quotas.
type CachingStore struct {
	inner     BlobStore
	cache     *blockCache
	blockSize int64
	limiter   *rate.Limiter
}

// CachingConfig configures a CachingStore.
type CachingConfig struct {
	// BlockSize is the cache granularity in bytes. Defaults to 64KB.
	BlockSize int64
	// MaxBytes bounds the total cached bytes. Defaults to 64MB.
	MaxBytes int64
	// FetchLimit throttles backend fetch requests per second. Zero means
	// unlimited.
	FetchLimit rate.Limit
}

// NewCachingStore wraps inner with a shared block cache.
func NewCachingStore(inner BlobStore, config CachingConfig) *CachingStore {
	blockSize := config.BlockSize
	if blockSize <= 0 {
		blockSize = 64 << 10
	}
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	var limiter *rate.Limiter
	if config.FetchLimit > 0 {
		limiter = rate.NewLimiter(config.FetchLimit, int(config.FetchLimit))
	}

	return &CachingStore{
		inner:     inner,
		cache:     newBlockCache(maxBytes),
		blockSize: blockSize,
		limiter:   limiter,
	}
}

// Open opens a blob whose reads go through the block cache. The context is
// retained for the backend fetches triggered by later reads.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{
		ctx:       ctx,
		inner:     b,
		store:     s,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

type cachingBlob struct {
	ctx       context.Context
	inner     Blob
	store     *CachingStore
	name      string
	blockSize int64
}

func (b *cachingBlob) Close() error {
	return b.inner.Close()
}

func (b *cachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *cachingBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 || off >= b.Size() {
		return 0, io.EOF
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(p)) - 1) / b.blockSize

	if err := b.fillCache(startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, ok := b.store.cache.get(b.name, blk)
		if !ok {
			// Evicted between fill and read, fetch directly.
			var err error
			if data, err = b.fetchBlock(blk); err != nil {
				return total, err
			}
		}

		blkStart := blk * b.blockSize
		srcOff := max(off-blkStart, 0)
		if srcOff >= int64(len(data)) {
			break
		}
		dstOff := blkStart + srcOff - off
		total += copy(p[dstOff:], data[srcOff:])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fillCache fetches the missing blocks of the given range, coalescing
// contiguous misses into single backend reads issued in parallel.
func (b *cachingBlob) fillCache(startBlock, endBlock int64) error {
	type span struct {
		start, count int64
	}
	var missing []span
	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.store.cache.get(b.name, blk); ok {
			continue
		}
		if n := len(missing); n > 0 && missing[n-1].start+missing[n-1].count == blk {
			missing[n-1].count++
			continue
		}
		missing = append(missing, span{start: blk, count: 1})
	}
	if len(missing) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(b.ctx)
	g.SetLimit(8)
	for _, run := range missing {
		run := run
		g.Go(func() error {
			if b.store.limiter != nil {
				if err := b.store.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			byteStart := run.start * b.blockSize
			byteLen := run.count * b.blockSize
			if size := b.Size(); byteStart+byteLen > size {
				byteLen = size - byteStart
			}
			if byteLen <= 0 {
				return nil
			}

			buf := make([]byte, byteLen)
			n, err := b.inner.ReadAt(buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			for i := int64(0); i*b.blockSize < int64(n); i++ {
				lo := i * b.blockSize
				hi := min(lo+b.blockSize, int64(n))
				block := make([]byte, hi-lo)
				copy(block, buf[lo:hi])
				b.store.cache.set(b.name, run.start+i, block)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *cachingBlob) fetchBlock(blk int64) ([]byte, error) {
	if b.store.limiter != nil {
		if err := b.store.limiter.Wait(b.ctx); err != nil {
			return nil, err
		}
	}

	off := blk * b.blockSize
	length := min(b.blockSize, b.Size()-off)
	buf := make([]byte, length)
	n, err := b.inner.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// blockCache is a byte-bounded LRU of (blob, block index) entries, shared
// by all blobs of one CachingStore.
type blockCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	items    map[blockKey]*blockEntry
	head     *blockEntry // most recent
	tail     *blockEntry
}

type blockKey struct {
	name string
	blk  int64
}

type blockEntry struct {
	key        blockKey
	data       []byte
	prev, next *blockEntry
}

func newBlockCache(maxBytes int64) *blockCache {
	return &blockCache{
		maxBytes: maxBytes,
		items:    make(map[blockKey]*blockEntry),
	}
}

func (c *blockCache) get(name string, blk int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[blockKey{name: name, blk: blk}]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.data, true
}

func (c *blockCache) set(name string, blk int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := blockKey{name: name, blk: blk}
	if e, ok := c.items[key]; ok {
		c.curBytes += int64(len(data)) - int64(len(e.data))
		e.data = data
		c.moveToFront(e)
	} else {
		e := &blockEntry{key: key, data: data}
		c.items[key] = e
		c.pushFront(e)
		c.curBytes += int64(len(data))
	}

	for c.curBytes > c.maxBytes && c.tail != nil {
		evict := c.tail
		c.unlink(evict)
		delete(c.items, evict.key)
		c.curBytes -= int64(len(evict.data))
	}
}

func (c *blockCache) pushFront(e *blockEntry) {
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *blockCache) unlink(e *blockEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *blockCache) moveToFront(e *blockEntry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}
