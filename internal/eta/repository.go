package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const outcomeColumns = `id, order_id, features, predicted_minutes, actual_minutes, success, model_used, created_at`

// Outcome is one completed delivery kept for audit and model retraining.
// Features is the serialized input vector the prediction was made from.
type Outcome struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	OrderID          *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Features         []byte     `db:"features" json:"-"`
	PredictedMinutes float64    `db:"predicted_minutes" json:"predicted_minutes"`
	ActualMinutes    float64    `db:"actual_minutes" json:"actual_minutes"`
	Success          bool       `db:"success" json:"success"`
	ModelUsed        string     `db:"model_used" json:"model_used"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

func NewOutcome(orderID *uuid.UUID, f Features, predicted, actual float64, success bool, modelUsed string) *Outcome {
	features, _ := json.Marshal(f)
	return &Outcome{
		ID:               uuid.New(),
		OrderID:          orderID,
		Features:         features,
		PredictedMinutes: predicted,
		ActualMinutes:    actual,
		Success:          success,
		ModelUsed:        modelUsed,
		CreatedAt:        time.Now(),
	}
}

func (o *Outcome) DecodeFeatures() (Features, error) {
	var f Features
	err := json.Unmarshal(o.Features, &f)
	return f, err
}

type Repository interface {
	Insert(ctx context.Context, ext sqlx.ExtContext, o *Outcome) error
	ListRecent(ctx context.Context, ext sqlx.ExtContext, limit int) ([]*Outcome, error)
}

type etaRepository struct{}

func NewRepository() Repository {
	return &etaRepository{}
}

func (r *etaRepository) Insert(ctx context.Context, ext sqlx.ExtContext, o *Outcome) error {
	const query = `INSERT INTO eta_history (id, order_id, features, predicted_minutes, actual_minutes, success, model_used, created_at)
		VALUES (:id, :order_id, :features, :predicted_minutes, :actual_minutes, :success, :model_used, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, o)
	return err
}

func (r *etaRepository) ListRecent(ctx context.Context, ext sqlx.ExtContext, limit int) ([]*Outcome, error) {
	if limit < 1 || limit > 5000 {
		limit = 1000
	}
	query := fmt.Sprintf(`SELECT %s FROM eta_history ORDER BY created_at DESC LIMIT %d`, outcomeColumns, limit)

	var rows []*Outcome
	if err := sqlx.SelectContext(ctx, ext, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}
