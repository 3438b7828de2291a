package client

import (
	"context"
	"net/http"
)

// HTTPClient is the outbound request interface used by the remote adapter.
// Implemented by ContextClient.
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var _ HTTPClient = (*ContextClient)(nil)
