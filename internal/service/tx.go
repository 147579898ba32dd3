package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-identity-api/internal/models"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

// withTx runs fn in a transaction. Any error from fn rolls the whole unit back.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Store(errors.New("transaction provider missing"))
	}

	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Store(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Store(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func newAuditLog(actorID, action, resource, resourceID string, oldValues, newValues interface{}) *models.AuditLog {
	entry := &models.AuditLog{Action: action, Resource: resource}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if oldValues != nil {
		if payload, err := json.Marshal(oldValues); err == nil {
			entry.OldValues = payload
		}
	}
	if newValues != nil {
		if payload, err := json.Marshal(newValues); err == nil {
			entry.NewValues = payload
		}
	}
	return entry
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func stringPtr(v string) *string {
	return &v
}

// optionalString trims v and returns nil when nothing is left.
func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
