package btreeindex

import "context"

// RelationScanner supplies the rows used to bulk-load a freshly built index.
// Next returns ok=false once the relation is exhausted; callers never see an
// end-of-file error, only a plain boolean, matching the index's own external
// operations.
type RelationScanner interface {
	Next(ctx context.Context) (rid RID, row []byte, ok bool, err error)
}
