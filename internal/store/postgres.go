package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"mtquotesAPI/internal/audit"
	"mtquotesAPI/internal/payment"
	"mtquotesAPI/internal/subscription"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema with goose.
func Migrate(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// PostgresStore locks rows with SELECT ... FOR UPDATE inside a pgx
// transaction, giving the same per-user atomicity as Firestore transactions.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const subscriptionColumns = `
	user_id, subscription_status, current_plan, recurring_type, is_trial,
	subscription_start_date, subscription_end_date, points, available_templates,
	daily_template_limit, can_edit, payment_due, payment_due_date, transaction_id,
	next_billing_amount, cancellation_date, last_payment_date, last_payment_amount,
	is_admin, fcm_tokens, updated_at`

const paymentColumns = `
	id, user_id, plan_type, amount, status, is_subscription, recurring_type,
	is_trial, start_date, end_date, payment_method, source, reference_id,
	gateway_status, webhook_payload, created_at, updated_at, resolved_at`

func (s *PostgresStore) GetSubscription(ctx context.Context, userID string) (*subscription.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scanRecord(row)
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM transactions WHERE id = $1`, id)
	return scanPayment(row)
}

func (s *PostgresStore) ListDue(ctx context.Context, st subscription.Status, before time.Time, after *Cursor, limit int) (Page, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE subscription_status = $1
		  AND subscription_end_date <= $2
		  AND ($3::timestamptz IS NULL OR (subscription_end_date, user_id) > ($3, $4))
		ORDER BY subscription_end_date, user_id
		LIMIT $5
	`
	var afterEnd *time.Time
	afterID := ""
	if after != nil {
		afterEnd = &after.EndDate
		afterID = after.UserID
	}
	pageLimit := limit
	if pageLimit <= 0 {
		pageLimit = 1000
	}

	rows, err := s.db.Query(ctx, query, string(st), before, afterEnd, afterID, pageLimit)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var records []*subscription.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Page{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return Page{Records: records, Next: nextCursor(records, limit)}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type postgresTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *postgresTx) GetSubscription(userID string) (*subscription.Record, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 FOR UPDATE`, userID)
	return scanRecord(row)
}

func (t *postgresTx) GetPayment(id string) (*payment.Payment, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+paymentColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row)
}

func (t *postgresTx) PutSubscription(rec *subscription.Record) error {
	query := `
		INSERT INTO subscriptions (
			user_id, subscription_status, current_plan, recurring_type, is_trial,
			subscription_start_date, subscription_end_date, points, available_templates,
			daily_template_limit, can_edit, payment_due, payment_due_date, transaction_id,
			next_billing_amount, cancellation_date, last_payment_date, last_payment_amount,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (user_id) DO UPDATE SET
			subscription_status = EXCLUDED.subscription_status,
			current_plan = EXCLUDED.current_plan,
			recurring_type = EXCLUDED.recurring_type,
			is_trial = EXCLUDED.is_trial,
			subscription_start_date = EXCLUDED.subscription_start_date,
			subscription_end_date = EXCLUDED.subscription_end_date,
			points = EXCLUDED.points,
			available_templates = EXCLUDED.available_templates,
			daily_template_limit = EXCLUDED.daily_template_limit,
			can_edit = EXCLUDED.can_edit,
			payment_due = EXCLUDED.payment_due,
			payment_due_date = EXCLUDED.payment_due_date,
			transaction_id = EXCLUDED.transaction_id,
			next_billing_amount = EXCLUDED.next_billing_amount,
			cancellation_date = EXCLUDED.cancellation_date,
			last_payment_date = EXCLUDED.last_payment_date,
			last_payment_amount = EXCLUDED.last_payment_amount,
			updated_at = EXCLUDED.updated_at
	`
	_, err := t.tx.Exec(t.ctx, query,
		rec.UserID,
		string(rec.Status.Normalize()),
		rec.CurrentPlan,
		string(rec.RecurringType),
		rec.IsTrial,
		rec.SubscriptionStartDate,
		rec.SubscriptionEndDate,
		rec.Points,
		rec.AvailableTemplates,
		rec.DailyTemplateLimit,
		rec.CanEdit,
		rec.PaymentDue,
		rec.PaymentDueDate,
		rec.TransactionID,
		rec.NextBillingAmount,
		rec.CancellationDate,
		rec.LastPaymentDate,
		rec.LastPaymentAmount,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", rec.UserID, err)
	}
	return nil
}

func (t *postgresTx) PutPayment(p *payment.Payment) error {
	query := `
		INSERT INTO transactions (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reference_id = EXCLUDED.reference_id,
			gateway_status = EXCLUDED.gateway_status,
			webhook_payload = EXCLUDED.webhook_payload,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at
	`
	_, err := t.tx.Exec(t.ctx, query,
		p.ID,
		p.UserID,
		p.PlanType,
		p.Amount,
		string(p.Status),
		p.IsSubscription,
		string(p.RecurringType),
		p.IsTrial,
		p.StartDate,
		p.EndDate,
		p.PaymentMethod,
		string(p.Source),
		p.ReferenceID,
		p.GatewayStatus,
		p.WebhookPayload,
		p.CreatedAt,
		p.UpdatedAt,
		p.ResolvedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("transaction %s: %w", p.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to save transaction %s: %w", p.ID, err)
	}
	return nil
}

func (t *postgresTx) AppendEvent(ev *audit.Event) error {
	// Collection is one of two fixed table names.
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, event, plan, subscription_type, amount, transaction_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.Collection())
	_, err := t.tx.Exec(t.ctx, query,
		ev.ID,
		ev.UserID,
		string(ev.Type),
		ev.Plan,
		string(ev.RecurringType),
		ev.Amount,
		ev.TransactionID,
		ev.Reason,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.Type, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*subscription.Record, error) {
	var rec subscription.Record
	var status, recurring string
	err := row.Scan(
		&rec.UserID,
		&status,
		&rec.CurrentPlan,
		&recurring,
		&rec.IsTrial,
		&rec.SubscriptionStartDate,
		&rec.SubscriptionEndDate,
		&rec.Points,
		&rec.AvailableTemplates,
		&rec.DailyTemplateLimit,
		&rec.CanEdit,
		&rec.PaymentDue,
		&rec.PaymentDueDate,
		&rec.TransactionID,
		&rec.NextBillingAmount,
		&rec.CancellationDate,
		&rec.LastPaymentDate,
		&rec.LastPaymentAmount,
		&rec.IsAdmin,
		&rec.FCMTokens,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	rec.Status = subscription.Status(status).Normalize()
	rec.RecurringType = subscription.Recurrence(recurring)
	return &rec, nil
}

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	var status, recurring, source string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PlanType,
		&p.Amount,
		&status,
		&p.IsSubscription,
		&recurring,
		&p.IsTrial,
		&p.StartDate,
		&p.EndDate,
		&p.PaymentMethod,
		&source,
		&p.ReferenceID,
		&p.GatewayStatus,
		&p.WebhookPayload,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	p.Status = payment.Status(status)
	p.RecurringType = subscription.Recurrence(recurring)
	p.Source = payment.Source(source)
	return &p, nil
}
