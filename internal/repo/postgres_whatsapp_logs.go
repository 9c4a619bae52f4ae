package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/LeventeLantos/order-confirm/internal/model"
)

// PostgresWhatsAppLogRepo is append-only: rows are inserted and listed,
// never updated or deleted.
type PostgresWhatsAppLogRepo struct {
	db *sql.DB
}

func NewPostgresWhatsAppLogRepo(db *sql.DB) *PostgresWhatsAppLogRepo {
	return &PostgresWhatsAppLogRepo{db: db}
}

var _ WhatsAppLogRepository = (*PostgresWhatsAppLogRepo)(nil)

func (r *PostgresWhatsAppLogRepo) Insert(ctx context.Context, e *model.WhatsAppLog) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO whatsapp_logs
		  (order_id, phone_e164, locale, template_name, direction, payload,
		   response_status, response_body, wa_message_id, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		nullUUID(e.OrderID),
		nullString(e.PhoneE164),
		nullString(e.Locale),
		nullString(e.TemplateName),
		string(e.Direction),
		payload,
		nullInt(e.ResponseStatus),
		nullString(e.ResponseBody),
		nullString(e.WAMessageID),
		nullString(e.ErrorText),
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresWhatsAppLogRepo) List(ctx context.Context, f LogFilter) ([]model.WhatsAppLog, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, phone_e164, locale, template_name, direction, payload,
		       response_status, response_body, wa_message_id, error_text, created_at
		FROM whatsapp_logs
		WHERE ($1::uuid IS NULL OR order_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, nullUUID(f.OrderID), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WhatsAppLog
	for rows.Next() {
		var (
			e         model.WhatsAppLog
			orderID   uuid.NullUUID
			phone     sql.NullString
			locale    sql.NullString
			tmpl      sql.NullString
			direction string
			payload   sql.NullString
			status    sql.NullInt64
			body      sql.NullString
			waID      sql.NullString
			errText   sql.NullString
		)

		if err := rows.Scan(
			&e.ID,
			&orderID,
			&phone,
			&locale,
			&tmpl,
			&direction,
			&payload,
			&status,
			&body,
			&waID,
			&errText,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}

		if orderID.Valid {
			id := orderID.UUID
			e.OrderID = &id
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		if status.Valid {
			s := int(status.Int64)
			e.ResponseStatus = &s
		}
		e.PhoneE164 = phone.String
		e.Locale = locale.String
		e.TemplateName = tmpl.String
		e.Direction = model.Direction(direction)
		e.ResponseBody = body.String
		e.WAMessageID = waID.String
		e.ErrorText = errText.String

		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
