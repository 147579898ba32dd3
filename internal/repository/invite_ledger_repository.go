package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

// InviteLedgerRepository stores hashes of invitation tokens that have been consumed.
type InviteLedgerRepository struct {
	db *sqlx.DB
}

// NewInviteLedgerRepository constructs the repository.
func NewInviteLedgerRepository(db *sqlx.DB) *InviteLedgerRepository {
	return &InviteLedgerRepository{db: db}
}

func (r *InviteLedgerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Record marks a token hash as consumed.
func (r *InviteLedgerRepository) Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ConsumedInvite) error {
	if entry.ClaimedAt.IsZero() {
		entry.ClaimedAt = time.Now().UTC()
	}
	const query = `INSERT INTO consumed_invites (token_hash, student_profile_id, claimed_by, claimed_at)
VALUES (:token_hash, :student_profile_id, :claimed_by, :claimed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("record consumed invite: %w", err)
	}
	return nil
}

// FindByHash returns the ledger entry for a token hash.
func (r *InviteLedgerRepository) FindByHash(ctx context.Context, exec sqlx.ExtContext, tokenHash string) (*models.ConsumedInvite, error) {
	var entry models.ConsumedInvite
	const query = `SELECT token_hash, student_profile_id, claimed_by, claimed_at FROM consumed_invites WHERE token_hash = $1`
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, tokenHash); err != nil {
		return nil, err
	}
	return &entry, nil
}
