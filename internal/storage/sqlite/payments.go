package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/models"
	"github.com/eddiepease/SatSale/internal/storage"
)

const paymentColumns = `id, fiat_value, crypto_value, method, target, created_at,
	webhook, backend_ref, confirmed_amount, unconfirmed_amount, status`

// InsertPayment appends a new payment record.
func (s *SQLiteLedger) InsertPayment(ctx context.Context, rec *models.PaymentRecord) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.FiatValue.String(),
		rec.CryptoValue.String(),
		rec.Method,
		rec.Target,
		rec.CreatedAt,
		rec.Webhook,
		rec.BackendRef,
		rec.ConfirmedAmount.String(),
		rec.UnconfirmedAmount.String(),
		string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

// UpdatePayment applies the non-nil fields of upd to the record with the
// given id. Returns storage.ErrNotFound if the id is absent.
func (s *SQLiteLedger) UpdatePayment(ctx context.Context, id string, upd storage.PaymentUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.ConfirmedAmount != nil {
		sets = append(sets, "confirmed_amount = ?")
		args = append(args, upd.ConfirmedAmount.String())
	}
	if upd.UnconfirmedAmount != nil {
		sets = append(sets, "unconfirmed_amount = ?")
		args = append(args, upd.UnconfirmedAmount.String())
	}
	if len(sets) == 0 {
		// Nothing to change; still report a missing id.
		_, err := s.FindPayment(ctx, id)
		return err
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE payments SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindPayment retrieves a payment record by id.
func (s *SQLiteLedger) FindPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)

	rec, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return rec, nil
}

// QueryPayments returns all records matching the filter, oldest first.
// Filter conditions compile to parameterized SQL.
func (s *SQLiteLedger) QueryPayments(ctx context.Context, f storage.Filter) ([]models.PaymentRecord, error) {
	query := "SELECT " + paymentColumns + " FROM payments"
	var (
		conds []string
		args  []any
	)
	if f.Method != "" {
		conds = append(conds, "method = ?")
		args = append(args, f.Method)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.CreatedAfter != 0 {
		conds = append(conds, "created_at > ?")
		args = append(args, f.CreatedAfter)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var records []models.PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return records, nil
}

// scanPayment reads one payments row through the given scan function,
// parsing the TEXT-stored decimal columns.
func scanPayment(scan func(dest ...any) error) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	var fiat, crypto, confirmed, unconfirmed, status string
	err := scan(
		&rec.ID, &fiat, &crypto, &rec.Method, &rec.Target, &rec.CreatedAt,
		&rec.Webhook, &rec.BackendRef, &confirmed, &unconfirmed, &status,
	)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.FiatValue, fiat},
		{&rec.CryptoValue, crypto},
		{&rec.ConfirmedAmount, confirmed},
		{&rec.UnconfirmedAmount, unconfirmed},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("corrupt decimal column %q: %w", field.src, err)
		}
		*field.dst = d
	}
	rec.Status = models.PaymentStatus(status)

	return &rec, nil
}
