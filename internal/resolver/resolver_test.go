package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/listfresh/listfresh/internal/atproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUpstream records every call and answers from per-method funcs.
type fakeUpstream struct {
	resolveHandleFn func(ctx context.Context, handle atproto.Handle) (*Identity, error)
	getListFn       func(ctx context.Context, list atproto.Locator, limit int) (*ListPage, error)
	getRecordFn     func(ctx context.Context, ref atproto.Locator) (*Record, error)

	handleCalls []atproto.Handle
	listCalls   []atproto.Locator
	recordCalls []atproto.Locator
}

func (f *fakeUpstream) ResolveHandle(ctx context.Context, handle atproto.Handle) (*Identity, error) {
	f.handleCalls = append(f.handleCalls, handle)
	if f.resolveHandleFn == nil {
		return nil, errors.New("unexpected ResolveHandle call")
	}
	return f.resolveHandleFn(ctx, handle)
}

func (f *fakeUpstream) GetList(ctx context.Context, list atproto.Locator, limit int) (*ListPage, error) {
	f.listCalls = append(f.listCalls, list)
	if f.getListFn == nil {
		return nil, errors.New("unexpected GetList call")
	}
	return f.getListFn(ctx, list, limit)
}

func (f *fakeUpstream) GetRecord(ctx context.Context, ref atproto.Locator) (*Record, error) {
	f.recordCalls = append(f.recordCalls, ref)
	if f.getRecordFn == nil {
		return nil, errors.New("unexpected GetRecord call")
	}
	return f.getRecordFn(ctx, ref)
}

type notFoundErr struct{ msg string }

func (e notFoundErr) Error() string  { return e.msg }
func (e notFoundErr) NotFound() bool { return true }

type recordingMetrics struct {
	sources []string
}

func (m *recordingMetrics) ObserveLatestItemSource(source string) {
	m.sources = append(m.sources, source)
}

func listPage(did, handle string, count int64, items []string, cursor string) *ListPage {
	page := &ListPage{
		List: ListView{
			URI:         "at://" + did + "/app.bsky.graph.list/list123",
			Creator:     Identity{DID: atproto.DID(did), Handle: handle},
			Name:        "Test List",
			Description: "A test list",
			Purpose:     PurposeCurateList,
			ItemCount:   count,
		},
		Cursor: cursor,
	}
	for _, uri := range items {
		page.Items = append(page.Items, ListItemView{URI: uri})
	}
	return page
}

func createdAtRecord(ts string) func(context.Context, atproto.Locator) (*Record, error) {
	return func(_ context.Context, ref atproto.Locator) (*Record, error) {
		value, _ := json.Marshal(map[string]string{
			"$type":     "app.bsky.graph.listitem",
			"createdAt": ts,
		})
		return &Record{URI: ref.String(), Value: value}, nil
	}
}

func mustLocator(t *testing.T, uri string) atproto.Locator {
	t.Helper()
	loc, err := atproto.ParseListLocator(uri)
	require.NoError(t, err)
	return loc
}

func TestResolve_InlineItem(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(_ context.Context, list atproto.Locator, limit int) (*ListPage, error) {
			assert.Equal(t, 1, limit)
			return listPage("did:plc:test123", "user.bsky.social", 5,
				[]string{"at://did:plc:test123/app.bsky.graph.listitem/item123"}, ""), nil
		},
		getRecordFn: createdAtRecord("2025-11-24T10:00:00.000Z"),
	}
	metrics := &recordingMetrics{}
	r := NewResolver(up, metrics, zap.NewNop())

	summary, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:test123/app.bsky.graph.list/list123"))
	require.NoError(t, err)

	require.NotNil(t, summary.LastAddedAt)
	assert.Equal(t, "2025-11-24T10:00:00.000Z", *summary.LastAddedAt)
	assert.Equal(t, &ListSummary{
		Name:          "Test List",
		Description:   "A test list",
		Purpose:       PurposeCurateList,
		CreatorDID:    "did:plc:test123",
		CreatorHandle: "user.bsky.social",
		ItemCount:     5,
		LastAddedAt:   summary.LastAddedAt,
		RecordKey:     "list123",
	}, summary)

	assert.Empty(t, up.handleCalls, "DID authority must not trigger handle resolution")
	require.Len(t, up.listCalls, 1)
	assert.Equal(t, "at://did:plc:test123/app.bsky.graph.list/list123", up.listCalls[0].String())
	require.Len(t, up.recordCalls, 1)
	assert.Equal(t, "at://did:plc:test123/app.bsky.graph.listitem/item123", up.recordCalls[0].String())
	assert.Equal(t, []string{"inline"}, metrics.sources)
}

func TestResolve_InlineItemUsesItemAuthority(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:owner", "owner.bsky.social", 2,
				[]string{"at://did:plc:other/app.bsky.graph.listitem/3kabc"}, ""), nil
		},
		getRecordFn: createdAtRecord("2025-01-01T00:00:00Z"),
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:owner/app.bsky.graph.list/list123"))
	require.NoError(t, err)
	require.Len(t, up.recordCalls, 1)
	assert.Equal(t, atproto.DID("did:plc:other"), up.recordCalls[0].Authority)
	assert.Equal(t, atproto.CollectionListItem, up.recordCalls[0].Collection)
	assert.Equal(t, "3kabc", up.recordCalls[0].RecordKey)
}

func TestResolve_HandleResolution(t *testing.T) {
	up := &fakeUpstream{
		resolveHandleFn: func(_ context.Context, handle atproto.Handle) (*Identity, error) {
			return &Identity{DID: "did:plc:resolved456", Handle: string(handle)}, nil
		},
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:resolved456", "user.bsky.social", 3,
				[]string{"at://did:plc:resolved456/app.bsky.graph.listitem/item789"}, ""), nil
		},
		getRecordFn: createdAtRecord("2025-11-20T15:30:00.000Z"),
	}
	r := NewResolver(up, nil, zap.NewNop())

	summary, err := r.Resolve(context.Background(), mustLocator(t, "at://user.bsky.social/app.bsky.graph.list/list456"))
	require.NoError(t, err)

	assert.Equal(t, []atproto.Handle{"user.bsky.social"}, up.handleCalls)
	require.Len(t, up.listCalls, 1)
	assert.Equal(t, "at://did:plc:resolved456/app.bsky.graph.list/list456", up.listCalls[0].String())
	assert.Equal(t, atproto.DID("did:plc:resolved456"), summary.CreatorDID)
	assert.Equal(t, "user.bsky.social", summary.CreatorHandle)
	assert.Equal(t, "list456", summary.RecordKey)
	require.NotNil(t, summary.LastAddedAt)
	assert.Equal(t, "2025-11-20T15:30:00.000Z", *summary.LastAddedAt)
}

func TestResolve_CreatorFromListOverridesResolvedHandle(t *testing.T) {
	up := &fakeUpstream{
		resolveHandleFn: func(context.Context, atproto.Handle) (*Identity, error) {
			return &Identity{DID: "did:plc:abc", Handle: "old.bsky.social"}, nil
		},
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:abc", "new.example.com", 0, nil, ""), nil
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	summary, err := r.Resolve(context.Background(), mustLocator(t, "at://old.bsky.social/app.bsky.graph.list/keep-me"))
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", summary.CreatorHandle)
	assert.Equal(t, "keep-me", summary.RecordKey, "rkey must come from the input locator")
}

func TestResolve_EmptyList(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:empty123", "empty.bsky.social", 0, nil, "ignored"), nil
		},
	}
	metrics := &recordingMetrics{}
	r := NewResolver(up, metrics, zap.NewNop())

	summary, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:empty123/app.bsky.graph.list/empty123"))
	require.NoError(t, err)
	assert.Nil(t, summary.LastAddedAt)
	assert.Equal(t, int64(0), summary.ItemCount)
	assert.Empty(t, up.recordCalls, "empty list must not fetch a record")
	assert.Equal(t, []string{"empty"}, metrics.sources)
}

func TestResolve_CursorFallback(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:cursor123", "cursor.bsky.social", 2, nil, "cursor789"), nil
		},
		getRecordFn: createdAtRecord("2025-11-18T12:00:00.000Z"),
	}
	r := NewResolver(up, nil, zap.NewNop())

	summary, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:cursor123/app.bsky.graph.list/cursor123"))
	require.NoError(t, err)

	require.Len(t, up.recordCalls, 1)
	assert.Equal(t, "at://did:plc:cursor123/app.bsky.graph.listitem/cursor789", up.recordCalls[0].String())
	require.NotNil(t, summary.LastAddedAt)
	assert.Equal(t, "2025-11-18T12:00:00.000Z", *summary.LastAddedAt)
}

func TestResolve_CursorFallbackUsesListCreator(t *testing.T) {
	up := &fakeUpstream{
		resolveHandleFn: func(context.Context, atproto.Handle) (*Identity, error) {
			return &Identity{DID: "did:plc:fromhandle", Handle: "a.bsky.social"}, nil
		},
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:fromlist", "a.bsky.social", 1, nil, "3kcur"), nil
		},
		getRecordFn: createdAtRecord("2025-11-18T12:00:00.000Z"),
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://a.bsky.social/app.bsky.graph.list/l1"))
	require.NoError(t, err)
	require.Len(t, up.recordCalls, 1)
	assert.Equal(t, atproto.DID("did:plc:fromlist"), up.recordCalls[0].Authority)
}

func TestResolve_NoItemNoCursor(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:x", "x.bsky.social", 4, nil, ""), nil
		},
	}
	metrics := &recordingMetrics{}
	r := NewResolver(up, metrics, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:x/app.bsky.graph.list/l1"))
	require.Error(t, err)
	assert.Equal(t, CodeFetchFailed, CodeOf(err))
	assert.ErrorIs(t, err, ErrNoLatestItem)
	assert.Empty(t, up.recordCalls)
	assert.Equal(t, []string{"unavailable"}, metrics.sources)
}

func TestResolve_HandleResolutionFails(t *testing.T) {
	up := &fakeUpstream{
		resolveHandleFn: func(context.Context, atproto.Handle) (*Identity, error) {
			return nil, errors.New("Profile not found")
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://nonexistent.bsky.social/app.bsky.graph.list/list123"))
	require.Error(t, err)
	assert.Equal(t, CodeListNotFound, CodeOf(err))
	assert.Empty(t, up.listCalls, "no list call after a failed handle lookup")
}

func TestResolve_HandleResolutionEmpty(t *testing.T) {
	up := &fakeUpstream{
		resolveHandleFn: func(context.Context, atproto.Handle) (*Identity, error) {
			return nil, nil
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://ghost.bsky.social/app.bsky.graph.list/list123"))
	require.Error(t, err)
	assert.Equal(t, CodeListNotFound, CodeOf(err))
	assert.ErrorIs(t, err, errEmptyResponse)
	assert.Empty(t, up.listCalls)
}

func TestResolve_ListNotFound(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return nil, notFoundErr{msg: "List not found"}
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:notfound/app.bsky.graph.list/notfound"))
	require.Error(t, err)
	assert.Equal(t, CodeListNotFound, CodeOf(err))
}

func TestResolve_ListFetchFails(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return nil, errors.New("Network error")
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:test123/app.bsky.graph.list/list123"))
	require.Error(t, err)
	assert.Equal(t, CodeFetchFailed, CodeOf(err))
	assert.Equal(t, "Failed to fetch list information", CodeOf(err).Message())
}

func TestResolve_RecordFetchFailures(t *testing.T) {
	cases := map[string]func(context.Context, atproto.Locator) (*Record, error){
		"upstream error": func(context.Context, atproto.Locator) (*Record, error) {
			return nil, errors.New("boom")
		},
		"record not found": func(context.Context, atproto.Locator) (*Record, error) {
			return nil, notFoundErr{msg: "Could not locate record"}
		},
		"missing createdAt": func(context.Context, atproto.Locator) (*Record, error) {
			return &Record{Value: json.RawMessage(`{"subject":"did:plc:x"}`)}, nil
		},
		"invalid json": func(context.Context, atproto.Locator) (*Record, error) {
			return &Record{Value: json.RawMessage(`nope`)}, nil
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			up := &fakeUpstream{
				getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
					return listPage("did:plc:x", "x.bsky.social", 1,
						[]string{"at://did:plc:x/app.bsky.graph.listitem/i1"}, ""), nil
				},
				getRecordFn: fn,
			}
			r := NewResolver(up, nil, zap.NewNop())

			_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:x/app.bsky.graph.list/l1"))
			require.Error(t, err)
			assert.Equal(t, CodeFetchFailed, CodeOf(err))
		})
	}
}

func TestResolve_UnparseableItemURI(t *testing.T) {
	up := &fakeUpstream{
		getListFn: func(context.Context, atproto.Locator, int) (*ListPage, error) {
			return listPage("did:plc:x", "x.bsky.social", 1, []string{"not-a-uri"}, ""), nil
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), mustLocator(t, "at://did:plc:x/app.bsky.graph.list/l1"))
	assert.Equal(t, CodeFetchFailed, CodeOf(err))
	assert.Empty(t, up.recordCalls)
}

func TestResolve_ContextPropagated(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	up := &fakeUpstream{
		getListFn: func(ctx context.Context, _ atproto.Locator, _ int) (*ListPage, error) {
			assert.Equal(t, "req-1", ctx.Value(ctxKey{}))
			return nil, errors.New("stop")
		},
	}
	r := NewResolver(up, nil, zap.NewNop())

	_, _ = r.Resolve(ctx, mustLocator(t, "at://did:plc:x/app.bsky.graph.list/l1"))
	require.Len(t, up.listCalls, 1)
}

func TestResolveURI_ParseFailuresMakeNoCalls(t *testing.T) {
	up := &fakeUpstream{}
	r := NewResolver(up, nil, zap.NewNop())

	_, err := r.ResolveURI(context.Background(), "invalid-uri-format")
	assert.Equal(t, CodeMalformedLocator, CodeOf(err))

	_, err = r.ResolveURI(context.Background(), "at://did:plc:test123/app.bsky.feed.post/wrongcollection")
	assert.Equal(t, CodeWrongCollection, CodeOf(err))

	assert.Empty(t, up.handleCalls)
	assert.Empty(t, up.listCalls)
	assert.Empty(t, up.recordCalls)
}

func TestLatestItemSourceOf(t *testing.T) {
	tests := []struct {
		name string
		page *ListPage
		want latestItemSource
	}{
		{"zero count wins over items", listPage("did:plc:x", "", 0, []string{"at://did:plc:x/app.bsky.graph.listitem/a"}, "c"), sourceEmpty},
		{"items", listPage("did:plc:x", "", 3, []string{"at://did:plc:x/app.bsky.graph.listitem/a"}, "c"), sourceInline},
		{"cursor", listPage("did:plc:x", "", 3, nil, "c"), sourceCursor},
		{"neither", listPage("did:plc:x", "", 3, nil, ""), sourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, latestItemSourceOf(tt.page))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeMalformedLocator, CodeOf(atproto.ErrMalformedLocator))
	assert.Equal(t, CodeWrongCollection, CodeOf(atproto.ErrWrongCollection))
	assert.Equal(t, CodeListNotFound, CodeOf(newError(CodeListNotFound, "x", errors.New("y"))))
	assert.Equal(t, CodeFetchFailed, CodeOf(errors.New("anything else")))
}
