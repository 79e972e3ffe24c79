package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the persistence contract the engine relies on. Failures are
// reported as false; implementations log the underlying PersistenceError.
type Store interface {
	Save(ctx context.Context, s Session) bool
	Load(ctx context.Context, userID string) (Session, bool)
	Clear(ctx context.Context, userID string)
}

type snapshotMetadata struct {
	EstimatedTimeRemaining int              `json:"estimatedTimeRemaining"`
	Stage                  Stage            `json:"stage"`
	CurrentDomain          string           `json:"currentDomain"`
	CurrentQuestionID      string           `json:"currentQuestionId,omitempty"`
	SessionID              string           `json:"sessionId"`
	UserID                 string           `json:"userId"`
	StartedAt              time.Time        `json:"startedAt"`
	Emergency              *EmergencyRecord `json:"emergency,omitempty"`
	CompletedAt            *time.Time       `json:"completedAt,omitempty"`
}

type snapshot struct {
	Responses            Responses                `json:"responses"`
	CurrentSectionIndex  int                      `json:"currentSectionIndex"`
	CurrentQuestionIndex int                      `json:"currentQuestionIndex"`
	Progress             float64                  `json:"progress"`
	Metadata             snapshotMetadata         `json:"metadata"`
	LastSavedAt          time.Time                `json:"lastSavedAt"`
	Results              *HealthAssessmentResults `json:"results,omitempty"`
}

// Serialize encodes a session as a resumable snapshot.
func Serialize(s Session) ([]byte, error) {
	snap := snapshot{
		Responses:            s.Responses,
		CurrentSectionIndex:  s.CurrentDomainIndex,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Progress:             s.Progress,
		Metadata: snapshotMetadata{
			EstimatedTimeRemaining: s.EstimatedTimeRemainingMinutes,
			Stage:                  s.Stage,
			CurrentDomain:          s.CurrentDomain,
			CurrentQuestionID:      s.CurrentQuestionID,
			SessionID:              s.ID,
			UserID:                 s.UserID,
			StartedAt:              s.StartedAt,
			Emergency:              s.Emergency,
			CompletedAt:            s.CompletedAt,
		},
		LastSavedAt: s.LastSavedAt,
		Results:     s.Results,
	}
	if snap.Responses == nil {
		snap.Responses = Responses{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Deserialize restores a session from a snapshot. The stored pointer is
// authoritative: responses are not replayed through the flow.
func Deserialize(data []byte) (Session, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Session{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Metadata.UserID == "" {
		return Session{}, fmt.Errorf("decode snapshot: missing user id")
	}
	stage := snap.Metadata.Stage
	if stage == "" {
		stage = StageTriage
	}
	if !stage.Valid() {
		return Session{}, fmt.Errorf("decode snapshot: unknown stage %q", stage)
	}
	responses := snap.Responses
	if responses == nil {
		responses = Responses{}
	}
	for id, r := range responses {
		if r.QuestionID == "" {
			r.QuestionID = id
			responses[id] = r
		}
	}
	return Session{
		ID:                            snap.Metadata.SessionID,
		UserID:                        snap.Metadata.UserID,
		Responses:                     responses,
		Stage:                         stage,
		CurrentDomain:                 snap.Metadata.CurrentDomain,
		CurrentDomainIndex:            snap.CurrentSectionIndex,
		CurrentQuestionIndex:          snap.CurrentQuestionIndex,
		CurrentQuestionID:             snap.Metadata.CurrentQuestionID,
		Progress:                      clamp(snap.Progress, 0, 100),
		EstimatedTimeRemainingMinutes: snap.Metadata.EstimatedTimeRemaining,
		Emergency:                     snap.Metadata.Emergency,
		StartedAt:                     snap.Metadata.StartedAt,
		LastSavedAt:                   snap.LastSavedAt,
		CompletedAt:                   snap.Metadata.CompletedAt,
		Results:                       snap.Results,
	}, nil
}
