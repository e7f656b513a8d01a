package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/listfresh/listfresh/internal/atproto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/listfresh/listfresh/internal/resolver"

// Metrics receives per-resolution observations. Nil is allowed.
type Metrics interface {
	ObserveLatestItemSource(source string)
}

// Resolver turns a list locator into a ListSummary. It holds no per-request
// state and is safe for concurrent use.
type Resolver struct {
	upstream Upstream
	metrics  Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewResolver creates a resolver backed by the given upstream.
func NewResolver(upstream Upstream, metrics Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		upstream: upstream,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// ResolveURI parses uri as a list locator and resolves it. Parse failures are
// returned as *Error before any upstream call is made.
func (r *Resolver) ResolveURI(ctx context.Context, uri string) (*ListSummary, error) {
	loc, err := atproto.ParseListLocator(uri)
	if err != nil {
		return nil, newError(CodeOf(err), "ResolveURI", err)
	}
	return r.Resolve(ctx, loc)
}

// Resolve runs authority resolution, the list fetch, and the latest-item
// lookup for loc. At most three upstream calls are made, one after another.
func (r *Resolver) Resolve(ctx context.Context, loc atproto.Locator) (*ListSummary, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.String("list.uri", loc.String())))
	defer span.End()

	summary, err := r.resolve(ctx, loc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
		return nil, err
	}
	return summary, nil
}

func (r *Resolver) resolve(ctx context.Context, loc atproto.Locator) (*ListSummary, error) {
	if loc.Collection != atproto.CollectionList {
		return nil, newError(CodeWrongCollection, "Resolve",
			fmt.Errorf("%w: %s", atproto.ErrWrongCollection, loc.Collection))
	}

	creator, err := r.resolveAuthority(ctx, loc.Authority)
	if err != nil {
		return nil, err
	}

	listLoc := atproto.NewLocator(creator.DID, atproto.CollectionList, loc.RecordKey)
	r.logger.Debug("fetching list with items", zap.String("list_uri", listLoc.String()))

	page, err := r.upstream.GetList(ctx, listLoc, 1)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(CodeListNotFound, "GetList", err)
		}
		return nil, newError(CodeFetchFailed, "GetList", err)
	}
	if page == nil {
		return nil, newError(CodeFetchFailed, "GetList", errEmptyResponse)
	}

	// The stored creator is authoritative; it can differ from the input after
	// a handle change.
	creator = page.List.Creator
	itemCount := max(page.List.ItemCount, 0)

	r.logger.Debug("list fetched",
		zap.String("list_uri", listLoc.String()),
		zap.String("did", string(creator.DID)),
		zap.String("handle", creator.Handle),
		zap.Int64("item_count", itemCount),
		zap.Int("items", len(page.Items)),
		zap.Bool("has_cursor", page.Cursor != ""),
	)

	lastAddedAt, err := r.latestItemCreatedAt(ctx, creator.DID, page)
	if err != nil {
		return nil, err
	}

	return &ListSummary{
		Name:          page.List.Name,
		Description:   page.List.Description,
		Purpose:       page.List.Purpose,
		CreatorDID:    creator.DID,
		CreatorHandle: creator.Handle,
		ItemCount:     itemCount,
		LastAddedAt:   lastAddedAt,
		RecordKey:     loc.RecordKey,
	}, nil
}

// resolveAuthority maps the locator authority to an identity. Handles need a
// lookup; DIDs are used as-is. A failed handle lookup is reported as
// LIST_NOT_FOUND so callers cannot tell which lookup missed.
func (r *Resolver) resolveAuthority(ctx context.Context, authority atproto.Authority) (Identity, error) {
	switch a := authority.(type) {
	case atproto.DID:
		return Identity{DID: a}, nil
	case atproto.Handle:
		r.logger.Debug("resolving handle to did", zap.String("handle", string(a)))
		ident, err := r.upstream.ResolveHandle(ctx, a)
		if err != nil {
			return Identity{}, newError(CodeListNotFound, "ResolveHandle", err)
		}
		if ident == nil {
			return Identity{}, newError(CodeListNotFound, "ResolveHandle", errEmptyResponse)
		}
		r.logger.Debug("resolved handle",
			zap.String("handle", ident.Handle),
			zap.String("did", string(ident.DID)),
		)
		return *ident, nil
	default:
		return Identity{}, newError(CodeMalformedLocator, "Resolve",
			fmt.Errorf("%w: unsupported authority %T", atproto.ErrMalformedLocator, authority))
	}
}

// latestItemSource says where the newest member's record key comes from.
type latestItemSource int

const (
	// sourceEmpty: the list has no items.
	sourceEmpty latestItemSource = iota + 1
	// sourceInline: getList returned the newest item.
	sourceInline
	// sourceCursor: the newest item failed hydration upstream; its rkey is the cursor.
	sourceCursor
	// sourceUnavailable: items reported but neither an item nor a cursor came back.
	sourceUnavailable
)

func (s latestItemSource) String() string {
	switch s {
	case sourceEmpty:
		return "empty"
	case sourceInline:
		return "inline"
	case sourceCursor:
		return "cursor"
	case sourceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func latestItemSourceOf(page *ListPage) latestItemSource {
	switch {
	case page.List.ItemCount <= 0:
		return sourceEmpty
	case len(page.Items) > 0:
		return sourceInline
	case page.Cursor != "":
		return sourceCursor
	default:
		return sourceUnavailable
	}
}

func (r *Resolver) latestItemCreatedAt(ctx context.Context, creator atproto.DID, page *ListPage) (*string, error) {
	source := latestItemSourceOf(page)
	if r.metrics != nil {
		r.metrics.ObserveLatestItemSource(source.String())
	}

	var ref atproto.Locator
	switch source {
	case sourceEmpty:
		return nil, nil
	case sourceInline:
		itemLoc, err := atproto.ParseLocator(page.Items[0].URI)
		if err != nil {
			return nil, newError(CodeFetchFailed, "ParseItemURI", err)
		}
		ref = atproto.NewLocator(itemLoc.Authority, atproto.CollectionListItem, itemLoc.RecordKey)
	case sourceCursor:
		rkey, err := atproto.ParseRecordKey(page.Cursor)
		if err != nil {
			return nil, newError(CodeFetchFailed, "ParseCursor", err)
		}
		ref = atproto.NewLocator(creator, atproto.CollectionListItem, rkey)
	default:
		return nil, newError(CodeFetchFailed, "LatestItem", ErrNoLatestItem)
	}

	r.logger.Debug("fetching list item record",
		zap.String("item_uri", ref.String()),
		zap.Stringer("source", source),
	)

	rec, err := r.upstream.GetRecord(ctx, ref)
	if err != nil {
		return nil, newError(CodeFetchFailed, "GetRecord", err)
	}
	if rec == nil {
		return nil, newError(CodeFetchFailed, "GetRecord", errEmptyResponse)
	}

	createdAt, err := recordCreatedAt(rec)
	if err != nil {
		return nil, newError(CodeFetchFailed, "GetRecord", err)
	}

	r.logger.Debug("list item createdAt", zap.String("created_at", createdAt))
	return &createdAt, nil
}

var (
	errEmptyResponse    = errors.New("upstream returned an empty response")
	errMissingCreatedAt = errors.New("record has no createdAt")
)

func recordCreatedAt(rec *Record) (string, error) {
	var value struct {
		CreatedAt string `json:"createdAt"`
	}
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		return "", fmt.Errorf("recordCreatedAt: %w", err)
	}
	if value.CreatedAt == "" {
		return "", errMissingCreatedAt
	}
	return value.CreatedAt, nil
}
