package resolver

import (
	"context"
	"encoding/json"

	"github.com/listfresh/listfresh/internal/atproto"
)

// List purposes as reported by app.bsky.graph.getList.
const (
	PurposeCurateList = "app.bsky.graph.defs#curatelist"
	PurposeModList    = "app.bsky.graph.defs#modlist"
)

// ListSummary is the normalized view of a list returned to callers.
type ListSummary struct {
	Name          string
	Description   string
	Purpose       string
	CreatorDID    atproto.DID
	CreatorHandle string
	ItemCount     int64
	// LastAddedAt is the createdAt of the newest list item as stored on the
	// record (RFC 3339). Nil for an empty list.
	LastAddedAt *string
	RecordKey   string
}

// Upstream is the set of remote calls the resolver needs. Implementations
// must honor ctx cancellation and must not retry.
type Upstream interface {
	// ResolveHandle returns the canonical DID and handle for a handle.
	ResolveHandle(ctx context.Context, handle atproto.Handle) (*Identity, error)

	// GetList returns list metadata and up to limit member items.
	GetList(ctx context.Context, list atproto.Locator, limit int) (*ListPage, error)

	// GetRecord fetches a single record by repo, collection, and rkey.
	GetRecord(ctx context.Context, ref atproto.Locator) (*Record, error)
}

// Identity is an account's stable DID and its current handle.
type Identity struct {
	DID    atproto.DID
	Handle string
}

// ListPage is one page of app.bsky.graph.getList output.
type ListPage struct {
	List   ListView
	Items  []ListItemView
	Cursor string // empty when upstream sent none
}

// ListView carries list metadata. Optional upstream fields are flattened to
// their zero values.
type ListView struct {
	URI         string
	Creator     Identity
	Name        string
	Description string
	Purpose     string
	ItemCount   int64
}

// ListItemView is a hydrated list member.
type ListItemView struct {
	URI string
}

// Record is a raw repo record.
type Record struct {
	URI   string
	CID   string
	Value json.RawMessage
}
