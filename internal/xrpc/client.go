package xrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/listfresh/listfresh/internal/atproto"
	"github.com/listfresh/listfresh/internal/resolver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultService is the public Bluesky AppView.
const DefaultService = "https://public.api.bsky.app"

// XRPC methods used by the client.
const (
	MethodGetProfile = "app.bsky.actor.getProfile"
	MethodGetList    = "app.bsky.graph.getList"
	MethodGetRecord  = "com.atproto.repo.getRecord"
)

const (
	maxResponseBytes = 1 << 20
	tracerName       = "github.com/listfresh/listfresh/internal/xrpc"
)

// Observer receives one observation per upstream call. Status is the HTTP
// status code as a string, or "error" for transport failures.
type Observer interface {
	ObserveUpstreamCall(method, status string, duration time.Duration)
}

// Config configures a Client.
type Config struct {
	Service   string
	Timeout   time.Duration
	UserAgent string
}

// Client issues XRPC queries against an AppView. It implements
// resolver.Upstream and is safe for concurrent use.
type Client struct {
	service    string
	userAgent  string
	httpClient *http.Client
	validator  *recordValidator
	observer   Observer
	tracer     trace.Tracer
	logger     *zap.Logger
}

var _ resolver.Upstream = (*Client)(nil)

// NewClient creates a client for cfg.Service. observer may be nil.
func NewClient(cfg Config, observer Observer, logger *zap.Logger) (*Client, error) {
	service := strings.TrimRight(cfg.Service, "/")
	if service == "" {
		service = DefaultService
	}
	if _, err := url.ParseRequestURI(service); err != nil {
		return nil, fmt.Errorf("NewClient: invalid service %q: %w", cfg.Service, err)
	}

	validator, err := newRecordValidator()
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		service:    service,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validator:  validator,
		observer:   observer,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}, nil
}

type profileOutput struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// ResolveHandle implements resolver.Upstream via app.bsky.actor.getProfile.
func (c *Client) ResolveHandle(ctx context.Context, handle atproto.Handle) (*resolver.Identity, error) {
	var out profileOutput
	params := url.Values{"actor": {string(handle)}}
	if err := c.query(ctx, MethodGetProfile, params, &out); err != nil {
		return nil, err
	}

	did, err := atproto.ParseDID(out.DID)
	if err != nil {
		return nil, fmt.Errorf("ResolveHandle: %w", err)
	}
	return &resolver.Identity{DID: did, Handle: out.Handle}, nil
}

type getListOutput struct {
	Cursor *string `json:"cursor,omitempty"`
	List   struct {
		URI     string `json:"uri"`
		Creator struct {
			DID    string `json:"did"`
			Handle string `json:"handle"`
		} `json:"creator"`
		Name          string  `json:"name"`
		Description   *string `json:"description,omitempty"`
		Purpose       *string `json:"purpose,omitempty"`
		ListItemCount *int64  `json:"listItemCount,omitempty"`
	} `json:"list"`
	Items []struct {
		URI string `json:"uri"`
	} `json:"items"`
}

// GetList implements resolver.Upstream via app.bsky.graph.getList.
func (c *Client) GetList(ctx context.Context, list atproto.Locator, limit int) (*resolver.ListPage, error) {
	var out getListOutput
	params := url.Values{
		"list":  {list.String()},
		"limit": {strconv.Itoa(limit)},
	}
	if err := c.query(ctx, MethodGetList, params, &out); err != nil {
		return nil, err
	}

	did, err := atproto.ParseDID(out.List.Creator.DID)
	if err != nil {
		return nil, fmt.Errorf("GetList: creator: %w", err)
	}

	page := &resolver.ListPage{
		List: resolver.ListView{
			URI:         out.List.URI,
			Creator:     resolver.Identity{DID: did, Handle: out.List.Creator.Handle},
			Name:        out.List.Name,
			Description: deref(out.List.Description),
			Purpose:     deref(out.List.Purpose),
			ItemCount:   deref(out.List.ListItemCount),
		},
		Cursor: deref(out.Cursor),
		Items:  make([]resolver.ListItemView, 0, len(out.Items)),
	}
	for _, item := range out.Items {
		page.Items = append(page.Items, resolver.ListItemView{URI: item.URI})
	}
	return page, nil
}

type getRecordOutput struct {
	URI   string          `json:"uri"`
	CID   *string         `json:"cid,omitempty"`
	Value json.RawMessage `json:"value"`
}

// GetRecord implements resolver.Upstream via com.atproto.repo.getRecord. The
// record value is validated against the collection schema when one is known.
func (c *Client) GetRecord(ctx context.Context, ref atproto.Locator) (*resolver.Record, error) {
	var out getRecordOutput
	params := url.Values{
		"repo":       {ref.Authority.String()},
		"collection": {string(ref.Collection)},
		"rkey":       {ref.RecordKey},
	}
	if err := c.query(ctx, MethodGetRecord, params, &out); err != nil {
		return nil, err
	}

	if err := c.validator.validate(ref.Collection, out.Value); err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	return &resolver.Record{URI: out.URI, CID: deref(out.CID), Value: out.Value}, nil
}

// query performs a single XRPC GET and decodes the JSON body into out. There
// are no retries.
func (c *Client) query(ctx context.Context, method string, params url.Values, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "xrpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("xrpc.method", method)))
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		if c.observer != nil {
			c.observer.ObserveUpstreamCall(method, status, time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
	}()

	endpoint := c.service + "/xrpc/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("xrpc %s: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("xrpc %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("xrpc %s: read body: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		xerr := &Error{Method: method, StatusCode: resp.StatusCode}
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			xerr.Name = errBody.Error
			xerr.Message = errBody.Message
		}
		c.logger.Debug("xrpc error response",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("error", xerr.Name),
			zap.String("message", xerr.Message),
		)
		return xerr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("xrpc %s: decode: %w", method, err)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
