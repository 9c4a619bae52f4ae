package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/phone"
)

type PostgresOrderRepo struct {
	db *sql.DB
}

func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

var _ OrderRepository = (*PostgresOrderRepo)(nil)

const orderColumns = `
	id, code_suivi, phone_e164, client_phone, first_name, client_nom,
	status, confirmed_at, canceled_at,
	whatsapp_confirm_sent, whatsapp_confirm_at, whatsapp_needs_review,
	lang, order_total, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (model.Order, error) {
	var (
		o           model.Order
		code        sql.NullString
		phoneE164   sql.NullString
		clientPhone sql.NullString
		firstName   sql.NullString
		clientName  sql.NullString
		status      string
		confirmedAt sql.NullTime
		canceledAt  sql.NullTime
		confirmAt   sql.NullTime
		lang        sql.NullString
	)

	if err := s.Scan(
		&o.ID,
		&code,
		&phoneE164,
		&clientPhone,
		&firstName,
		&clientName,
		&status,
		&confirmedAt,
		&canceledAt,
		&o.WhatsAppConfirmSent,
		&confirmAt,
		&o.NeedsReview,
		&lang,
		&o.OrderTotal,
		&o.CreatedAt,
	); err != nil {
		return model.Order{}, err
	}

	o.TrackingCode = code.String
	o.PhoneE164 = phoneE164.String
	o.ClientPhone = clientPhone.String
	o.FirstName = firstName.String
	o.ClientName = clientName.String
	o.Status = model.OrderStatus(status)
	o.Lang = lang.String
	o.ConfirmedAt = timePtr(confirmedAt)
	o.CanceledAt = timePtr(canceledAt)
	o.WhatsAppConfirmAt = timePtr(confirmAt)
	return o, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresOrderRepo) ClaimDueForConfirmation(ctx context.Context, createdBefore, claimedAt time.Time, lease time.Duration, limit int) ([]model.Order, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if lease <= 0 {
		return nil, errors.New("lease must be > 0")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders
		WHERE status = 'nouvelle'
		  AND whatsapp_confirm_sent = false
		  AND whatsapp_needs_review = false
		  AND created_at < $1
		  AND (whatsapp_claimed_at IS NULL OR whatsapp_claimed_at < $2)
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, createdBefore, claimedAt.Add(-lease), limit)
	if err != nil {
		return nil, err
	}

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, o := range out {
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET whatsapp_claimed_at = $2
			WHERE id = $1
		`, o.ID, claimedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresOrderRepo) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET whatsapp_claimed_at = NULL
		WHERE id = $1
		  AND whatsapp_confirm_sent = false
	`, id)
	return err
}

func (r *PostgresOrderRepo) MarkConfirmSent(ctx context.Context, id uuid.UUID, sentAt time.Time, phoneE164, firstName string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET whatsapp_confirm_sent = true,
		    whatsapp_confirm_at = $2,
		    phone_e164 = COALESCE(NULLIF($3, ''), phone_e164),
		    first_name = COALESCE(NULLIF($4, ''), first_name)
		WHERE id = $1
		  AND whatsapp_confirm_sent = false
	`, id, sentAt, phoneE164, firstName)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresOrderRepo) FlagForReview(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET whatsapp_needs_review = true,
		    whatsapp_review_reason = $2
		WHERE id = $1
	`, id, reason)
	return err
}

func (r *PostgresOrderRepo) FindLatestPendingByPhone(ctx context.Context, phoneE164 string) (*model.Order, error) {
	// phone_e164 is only backfilled by a live send, so replies to orders the
	// sweep has not reached yet are matched on the digits of client_phone.
	forms := phone.DigitForms(phoneE164)
	row := r.db.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders
		WHERE status = 'nouvelle'
		  AND (phone_e164 = $1
		       OR regexp_replace(client_phone, '[^0-9]', '', 'g') IN ($2, $3, $4, $5))
		ORDER BY created_at DESC
		LIMIT 1
	`, phoneE164, forms[0], forms[1], forms[2], forms[3])

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresOrderRepo) TransitionFromPending(ctx context.Context, id uuid.UUID, to model.OrderStatus, at time.Time) (bool, error) {
	var stamp string
	switch to {
	case model.StatusConfirmed:
		stamp = "confirmed_at"
	case model.StatusCanceled:
		stamp = "canceled_at"
	default:
		return false, fmt.Errorf("unsupported transition to %q", to)
	}

	// The status guard in the WHERE clause makes redelivered replies no-ops.
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, `+stamp+` = $3
		WHERE id = $1
		  AND status = 'nouvelle'
	`, id, string(to), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
