package chi

import "github.com/kailas-cloud/paperdex/internal/usecase/retrieval"

// errorCode is the machine-readable error identifier returned to clients.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeUnauthorized     errorCode = "unauthorized"
	codeNotFound         errorCode = "not_found"
	codeMethodNotAllowed errorCode = "method_not_allowed"
	codeIndexUnavailable errorCode = "index_unavailable"
	codeEncodingFailed   errorCode = "encoding_failed"
	codeInternalError    errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type queryRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

type queryResponse struct {
	Results []resultItem `json:"results"`
}

// resultItem omits metadata fields the store does not have.
type resultItem struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Title    *string `json:"title,omitempty"`
	Abstract *string `json:"abstract,omitempty"`
	Authors  *string `json:"authors,omitempty"`
	Score    float32 `json:"score"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func resultToItem(r *retrieval.Result) resultItem {
	return resultItem{
		ID:       r.Document.ID,
		Source:   string(r.Document.Source),
		Title:    r.Document.Title,
		Abstract: r.Document.Abstract,
		Authors:  r.Document.Authors,
		Score:    r.Score,
	}
}
