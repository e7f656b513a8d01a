package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/listfresh/listfresh/internal/resolver"
	"github.com/listfresh/listfresh/internal/storage"
	"github.com/listfresh/listfresh/internal/telemetry"
	"go.uber.org/zap"
)

// outcomeBadRequest is recorded for requests rejected before resolution and
// is the error name for both locator codes.
const outcomeBadRequest = "BAD_REQUEST"

// handleListInfo implements POST /api/list-info.
func (d *Dependencies) handleListInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ListInfoRequest
	if err := readJSON(w, r, &req); err != nil {
		d.finish(r, req.URI, outcomeBadRequest, nil, start)
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: outcomeBadRequest, Message: "Invalid JSON body"})
		return
	}
	if req.URI == "" {
		d.finish(r, req.URI, outcomeBadRequest, nil, start)
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: outcomeBadRequest, Message: "Missing uri parameter"})
		return
	}

	summary, err := d.Resolver.ResolveURI(r.Context(), req.URI)
	if err != nil {
		code := resolver.CodeOf(err)
		status, name := ErrorStatus(code)
		d.logFailure(r, req.URI, code, err)
		d.finish(r, req.URI, string(code), nil, start)
		writeJSON(w, status, ErrorResp{Error: name, Message: code.Message()})
		return
	}

	d.finish(r, req.URI, telemetry.OutcomeOK, summary, start)
	writeJSON(w, http.StatusOK, NewListInfoResponse(summary))
}

// ErrorStatus maps a resolution code to the HTTP status and the error name
// placed in the body. Both locator codes surface as BAD_REQUEST.
func ErrorStatus(code resolver.Code) (int, string) {
	switch code {
	case resolver.CodeMalformedLocator, resolver.CodeWrongCollection:
		return http.StatusBadRequest, outcomeBadRequest
	case resolver.CodeListNotFound:
		return http.StatusNotFound, string(resolver.CodeListNotFound)
	default:
		return http.StatusInternalServerError, string(resolver.CodeFetchFailed)
	}
}

// logFailure keeps the upstream cause server-side; callers only see the code.
func (d *Dependencies) logFailure(r *http.Request, uri string, code resolver.Code, err error) {
	fields := []zap.Field{
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.String("uri", storage.Truncate(uri, storage.URIPreviewLength)),
		zap.String("code", string(code)),
		zap.Error(err),
	}
	var rerr *resolver.Error
	if errors.As(err, &rerr) {
		fields = append(fields, zap.String("op", rerr.Op))
	}
	if code == resolver.CodeFetchFailed {
		d.Logger.Error("list resolution failed", fields...)
		return
	}
	d.Logger.Info("list resolution rejected", fields...)
}

// finish records metrics and fires the lookup event. The writer never blocks.
func (d *Dependencies) finish(r *http.Request, uri, outcome string, summary *resolver.ListSummary, start time.Time) {
	elapsed := time.Since(start)
	if d.Metrics != nil {
		d.Metrics.ObserveResolution(outcome, elapsed)
	}

	event := &storage.LookupEvent{
		RequestID: requestIDFromContext(r.Context()),
		Timestamp: start,
		URI:       storage.Truncate(uri, storage.URIPreviewLength),
		Outcome:   outcome,
		LatencyMs: float32(float64(elapsed) / float64(time.Millisecond)),
		UserAgent: storage.Truncate(r.UserAgent(), storage.URIPreviewLength),
	}
	if summary != nil {
		event.RecordKey = summary.RecordKey
		event.CreatorDID = string(summary.CreatorDID)
		event.ItemCount = summary.ItemCount
		event.HasLastAdded = summary.LastAddedAt != nil
	}
	d.Writer.Write(event)
}
