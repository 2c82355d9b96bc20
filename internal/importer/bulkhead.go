package importer

// bulkhead.go implements the batch-write resilience pattern shared by all
// three entity-kind importers.
//
// A bulk write is attempted first. If it fails, the operation degrades to
// one-at-a-time writes for the same items, so a single malformed or
// constraint-violating row costs only itself: each individually failing item
// is reported through the callback while the rest of the batch still lands.

import "context"

// writeBulkhead attempts bulk(items); on failure it retries each item via
// single, invoking onError for items that still fail. It returns the number
// of items successfully written.
//
// The fallback path is intentionally non-transactional per item: item N's
// failure never rolls back items written before it.
func writeBulkhead[T any](
	ctx context.Context,
	items []T,
	bulk func(context.Context, []T) error,
	single func(context.Context, T) error,
	onError func(item T, err error),
) int {
	if len(items) == 0 {
		return 0
	}

	if err := bulk(ctx, items); err == nil {
		return len(items)
	}

	succeeded := 0
	for _, item := range items {
		if err := single(ctx, item); err != nil {
			onError(item, err)
			continue
		}
		succeeded++
	}
	return succeeded
}
