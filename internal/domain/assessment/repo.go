package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// SnapshotRepository stores one serialized session per user.
type SnapshotRepository interface {
	Put(ctx context.Context, userID, sessionID string, snapshot []byte) error
	Get(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

// StoredResult is a finalized result as kept for clinical review.
type StoredResult struct {
	ID             uuid.UUID                `json:"id"`
	SessionID      string                   `json:"sessionId"`
	UserID         string                   `json:"userId"`
	RiskLevel      RiskLevel                `json:"riskLevel"`
	TotalRiskScore float64                  `json:"totalRiskScore"`
	FraudScore     float64                  `json:"fraudScore"`
	Results        *HealthAssessmentResults `json:"results"`
	CreatedAt      time.Time                `json:"createdAt"`
}

// ResultRepository stores finalized results. Create is idempotent per
// session: a second call for the same session keeps the first row's id and
// clinical fields and refreshes its fraud score and payload.
type ResultRepository interface {
	Create(ctx context.Context, r *StoredResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*StoredResult, error)
	List(ctx context.Context, limit, offset int) ([]*StoredResult, int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*StoredResult, int, error)
}

// Sealer encrypts stored payloads. aad binds a ciphertext to its owner.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}
