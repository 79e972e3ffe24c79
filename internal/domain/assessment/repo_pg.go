package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/onboarding/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Snapshot Repository ===========

type snapshotRepoPG struct {
	pool   *pgxpool.Pool
	sealer Sealer
}

func NewSnapshotRepoPG(pool *pgxpool.Pool, sealer Sealer) SnapshotRepository {
	return &snapshotRepoPG{pool: pool, sealer: sealer}
}

func (r *snapshotRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *snapshotRepoPG) Put(ctx context.Context, userID, sessionID string, snapshot []byte) error {
	sealed, err := r.sealer.Seal(snapshot, []byte(userID))
	if err != nil {
		return fmt.Errorf("seal snapshot: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO assessment_session (user_id, session_id, snapshot, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
			SET session_id = EXCLUDED.session_id, snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		userID, sessionID, sealed)
	return err
}

func (r *snapshotRepoPG) Get(ctx context.Context, userID string) ([]byte, error) {
	var sealed []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT snapshot FROM assessment_session WHERE user_id = $1`, userID).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.sealer.Open(sealed, []byte(userID))
}

func (r *snapshotRepoPG) Delete(ctx context.Context, userID string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM assessment_session WHERE user_id = $1`, userID)
	return err
}

// =========== Result Repository ===========

type resultRepoPG struct {
	pool   *pgxpool.Pool
	sealer Sealer
}

func NewResultRepoPG(pool *pgxpool.Pool, sealer Sealer) ResultRepository {
	return &resultRepoPG{pool: pool, sealer: sealer}
}

func (r *resultRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const resultCols = `id, session_id, user_id, risk_level, total_risk_score, fraud_score, payload, created_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*StoredResult, error) {
	var (
		sr     StoredResult
		sealed []byte
	)
	if err := row.Scan(&sr.ID, &sr.SessionID, &sr.UserID, &sr.RiskLevel, &sr.TotalRiskScore,
		&sr.FraudScore, &sealed, &sr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	payload, err := r.sealer.Open(sealed, []byte(sr.UserID))
	if err != nil {
		return nil, fmt.Errorf("open result %s: %w", sr.ID, err)
	}
	sr.Results = &HealthAssessmentResults{}
	if err := json.Unmarshal(payload, sr.Results); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", sr.ID, err)
	}
	return &sr, nil
}

func (r *resultRepoPG) Create(ctx context.Context, sr *StoredResult) error {
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	payload, err := json.Marshal(sr.Results)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	sealed, err := r.sealer.Seal(payload, []byte(sr.UserID))
	if err != nil {
		return fmt.Errorf("seal result: %w", err)
	}
	// One row per session: a repeat keeps the id and clinical fields and
	// refreshes the fraud assessment.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assessment_result (id, session_id, user_id, risk_level, total_risk_score, fraud_score, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE
		SET fraud_score = EXCLUDED.fraud_score, payload = EXCLUDED.payload
		RETURNING id`,
		sr.ID, sr.SessionID, sr.UserID, sr.RiskLevel, sr.TotalRiskScore, sr.FraudScore, sealed).Scan(&sr.ID)
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StoredResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM assessment_result WHERE id = $1`, id))
}

func (r *resultRepoPG) List(ctx context.Context, limit, offset int) ([]*StoredResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assessment_result`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM assessment_result ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *resultRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*StoredResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assessment_result WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM assessment_result WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *resultRepoPG) collect(rows pgx.Rows, total int) ([]*StoredResult, int, error) {
	var items []*StoredResult
	for rows.Next() {
		sr, err := r.scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
