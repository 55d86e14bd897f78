package ports

import "context"

type ReasonRequest struct {
	// Credential selects the upstream account; rule plaintext only exists for
	// the duration of the call and must never be logged.
	Credential string
	Rules      []byte
	Query      string
}

type ReasonResult struct {
	Conclusion  string
	InferenceMs int64
}

// Reasoner calls the external reasoning service. Implementations retry once
// on transport error and never on a non-2xx response.
type Reasoner interface {
	Conclude(ctx context.Context, req ReasonRequest) (ReasonResult, error)
}
