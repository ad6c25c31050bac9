package operations

import "gitlab.com/savesync.net/internal/domain"

// CreateOperationRequest is a queue request; client_id is optional and resolved from the user's workers
type CreateOperationRequest struct {
	domain.CreateOperationRequest
	ClientID string `json:"client_id,omitempty"`
}

type CreateOperationResponse struct {
	OperationID string `json:"operation_id"`
	ClientID    string `json:"client_id"`
}

type ProgressRequest struct {
	Current *int    `json:"current,omitempty"`
	Total   *int    `json:"total,omitempty"`
	Message *string `json:"message,omitempty"`
}

type CompleteRequest struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

type OperationsResponse struct {
	Operations []*domain.Operation `json:"operations"`
}
