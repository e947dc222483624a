package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const clientColumns = `id, client_code, status, payment_status, message, last_paid_date,
	next_billing_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.ClientRecord, error) {
	return r.findOne(ctx, conn, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, code string) (*domain.ClientRecord, error) {
	return r.findOne(ctx, conn, `SELECT `+clientColumns+` FROM clients WHERE client_code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, arg any) (*domain.ClientRecord, error) {
	var rows []domain.ClientRecord
	if err := conn.WithContext(ctx).Raw(query, arg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, record *domain.ClientRecord) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ClientCode,
		record.Status,
		record.PaymentStatus,
		record.Message,
		record.LastPaidDate,
		record.NextBillingDate,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateKey
	}
	return err
}

func (r *repo) Save(ctx context.Context, conn *gorm.DB, record *domain.ClientRecord) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE clients
		 SET status = ?, payment_status = ?, message = ?, last_paid_date = ?,
		     next_billing_date = ?, updated_at = ?
		 WHERE id = ?`,
		record.Status,
		record.PaymentStatus,
		record.Message,
		record.LastPaidDate,
		record.NextBillingDate,
		record.UpdatedAt,
		record.ID,
	).Error
}

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.ClientRecord, int64, error) {
	stmt := conn.WithContext(ctx).Model(&domain.ClientRecord{})
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if search := domain.NormalizeCode(filter.Search); search != "" {
		stmt = stmt.Where(`client_code LIKE ? ESCAPE '!'`, "%"+likeEscaper.Replace(search)+"%")
	}
	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*domain.ClientRecord
	err := stmt.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *repo) AppendPayment(ctx context.Context, conn *gorm.DB, entry *domain.PaymentEntry) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO client_payments (id, client_id, payment_date, amount, method, transaction_id, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ClientID,
		entry.PaymentDate,
		entry.Amount,
		entry.Method,
		entry.TransactionID,
		entry.Notes,
	).Error
}

func (r *repo) ListPayments(ctx context.Context, conn *gorm.DB, clientIDs ...snowflake.ID) ([]domain.PaymentEntry, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	var entries []domain.PaymentEntry
	err := conn.WithContext(ctx).
		Where("client_id IN ?", clientIDs).
		Order("client_id, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindPayment(ctx context.Context, conn *gorm.DB, clientID, paymentID snowflake.ID) (*domain.PaymentEntry, error) {
	var entries []domain.PaymentEntry
	err := conn.WithContext(ctx).
		Where("client_id = ? AND id = ?", clientID, paymentID).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) CountByStatus(ctx context.Context, conn *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		Count  int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM clients GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *repo) SumPayments(ctx context.Context, conn *gorm.DB) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := conn.WithContext(ctx).Raw(
		`SELECT SUM(amount) FROM client_payments`,
	).Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repo) MarkOverdue(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]*domain.ClientRecord, error) {
	var records []*domain.ClientRecord
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT `+clientColumns+` FROM clients
			 WHERE status = ? AND next_billing_date IS NOT NULL AND next_billing_date < ?
			 ORDER BY next_billing_date, id
			 LIMIT ?`,
			domain.StatusActive,
			now,
			limit,
		).Scan(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(records))
		for _, record := range records {
			ids = append(ids, record.ID)
		}
		if err := tx.Exec(
			`UPDATE clients SET status = ?, updated_at = ? WHERE id IN ? AND status = ?`,
			domain.StatusDue,
			now,
			ids,
			domain.StatusActive,
		).Error; err != nil {
			return err
		}

		for _, record := range records {
			record.Status = domain.StatusDue
			record.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
