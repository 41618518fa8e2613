package cloudupload

import (
	"context"
	"fmt"
)

// composeChunks combines chunkObjects into dest, honoring GCS's fan-in
// limit of maxPerCompose sources per compose call by composing in
// intermediate levels when there are more chunks than that.
func composeChunks(ctx context.Context, store objectStore, dest string, chunkObjects []string, maxPerCompose int) error {
	if len(chunkObjects) == 0 {
		return fmt.Errorf("cloudupload: no chunks to compose")
	}
	if len(chunkObjects) <= maxPerCompose {
		return store.compose(ctx, dest, chunkObjects)
	}

	var intermediates []string
	for i := 0; i < len(chunkObjects); i += maxPerCompose {
		end := i + maxPerCompose
		if end > len(chunkObjects) {
			end = len(chunkObjects)
		}
		group := chunkObjects[i:end]
		intermediate := fmt.Sprintf("%s.part.%d", dest, i/maxPerCompose)
		if err := store.compose(ctx, intermediate, group); err != nil {
			cleanup(ctx, store, intermediates)
			return err
		}
		intermediates = append(intermediates, intermediate)
	}

	err := composeChunks(ctx, store, dest, intermediates, maxPerCompose)
	cleanup(ctx, store, intermediates)
	return err
}

func cleanup(ctx context.Context, store objectStore, objects []string) {
	for _, name := range objects {
		_ = store.delete(ctx, name)
	}
}
