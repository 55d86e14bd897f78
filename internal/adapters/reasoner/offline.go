package reasoner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/skillforge/marketplace/internal/ports"
)

// Offline produces a deterministic conclusion without leaving the
// process. It is used when no reasoning endpoint is configured so the
// invocation pipeline (quota, ledger, hash chain) stays exercisable.
type Offline struct{}

func NewOffline() *Offline {
	return &Offline{}
}

func (o *Offline) Conclude(ctx context.Context, req ports.ReasonRequest) (ports.ReasonResult, error) {
	h := sha256.New()
	h.Write(req.Rules)
	h.Write([]byte{0})
	h.Write([]byte(req.Query))
	digest := hex.EncodeToString(h.Sum(nil))
	return ports.ReasonResult{
		Conclusion:  fmt.Sprintf("offline-conclusion:%s", digest[:16]),
		InferenceMs: 0,
	}, nil
}
