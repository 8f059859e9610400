package archivist

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of reading one member.
type BatchItem struct {
	Path string
	Data Data
	Err  error
}

// BatchResult holds the items of ReadAll in listing order.
type BatchResult struct {
	Items []BatchItem
}

// Errs returns the items that failed.
func (r BatchResult) Errs() []BatchItem {
	var failed []BatchItem
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// ReadAll extracts and reads every member accepted by filter, with at most
// the configured number of workers reading at once. A member that fails is
// recorded in its item and does not stop the others. Only failures to list
// the archive are returned as an error.
func (f *Facade) ReadAll(ctx context.Context, h Handle, filter Filter) (BatchResult, error) {
	entries, err := f.ExtractAll(ctx, h, filter)
	if err != nil {
		return BatchResult{}, err
	}
	items := make([]BatchItem, len(entries))
	g := new(errgroup.Group)
	g.SetLimit(f.workers)
	for i, e := range entries {
		items[i].Path = e.Path()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Data, items[i].Err = e.Bytes(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return BatchResult{Items: items}, nil
}
