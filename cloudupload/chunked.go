package cloudupload

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// uploadChunked splits a large rolled file into cfg.ChunkSize pieces,
// uploads them concurrently as temporary objects, and composes them
// into the final object in commit order. Chunk objects are always
// cleaned up, whether or not the compose succeeds.
func (u *Uploader) uploadChunked(ctx context.Context, path, object string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cloudupload: open %s: %w", path, err)
	}
	defer f.Close()

	chunkSize := int64(u.cfg.ChunkSize)
	numChunks := int((size + chunkSize - 1) / chunkSize)
	chunkNames := make([]string, numChunks)

	var wg sync.WaitGroup
	errs := make([]error, numChunks)
	for i := 0; i < numChunks; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		chunkNames[i] = fmt.Sprintf("%s.chunk.%d", object, i)

		wg.Add(1)
		go func(i int, offset, length int64) {
			defer wg.Done()
			r := io.NewSectionReader(f, offset, length)
			if err := u.store.put(ctx, chunkNames[i], r); err != nil {
				errs[i] = err
			}
		}(i, offset, length)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			cleanup(ctx, u.store, chunkNames)
			return fmt.Errorf("cloudupload: chunk %d of %s: %w", i, path, err)
		}
	}

	if err := composeChunks(ctx, u.store, object, chunkNames, u.cfg.MaxChunksPerCompose); err != nil {
		cleanup(ctx, u.store, chunkNames)
		return err
	}
	cleanup(ctx, u.store, chunkNames)
	return nil
}
