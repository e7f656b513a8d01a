package api

import "github.com/listfresh/listfresh/internal/resolver"

// --- POST /api/list-info request/response ---

// ListInfoRequest is the JSON body for POST /api/list-info.
type ListInfoRequest struct {
	URI string `json:"uri"`
}

// ListInfoResponse is the summary returned for a resolved list.
type ListInfoResponse struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Purpose       string  `json:"purpose"`
	CreatorDID    string  `json:"creatorDid"`
	CreatorHandle string  `json:"creatorHandle"`
	ListItemCount int64   `json:"listItemCount"`
	DateLastAdded *string `json:"dateLastAdded"` // null for an empty list
	RKey          string  `json:"rkey"`
}

// NewListInfoResponse converts a resolved summary to its wire form.
func NewListInfoResponse(s *resolver.ListSummary) ListInfoResponse {
	return ListInfoResponse{
		Name:          s.Name,
		Description:   s.Description,
		Purpose:       s.Purpose,
		CreatorDID:    string(s.CreatorDID),
		CreatorHandle: s.CreatorHandle,
		ListItemCount: s.ItemCount,
		DateLastAdded: s.LastAddedAt,
		RKey:          s.RecordKey,
	}
}

// ErrorResp is the body of every JSON error response.
type ErrorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResp is the body of GET /healthz.
type HealthResp struct {
	Status string `json:"status"`
}
