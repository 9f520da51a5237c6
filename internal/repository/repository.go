package repository

import (
	"database/sql"
	"fmt"

	"github.com/avelot/cashflow-service/internal/forecast"
	"github.com/avelot/cashflow-service/internal/models"
	"github.com/lib/pq"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(user *models.User) error {
	query := `
		INSERT INTO cashflow.users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM cashflow.users
		WHERE email = $1`
	err := r.db.QueryRow(query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// SaveTransactions bulk-inserts historical bank transactions
func (r *Repository) SaveTransactions(transactions []models.Transaction) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyInSchema("cashflow", "transactions", "date", "type", "amount", "currency", "category", "amount_eur"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, t := range transactions {
		if _, err := stmt.Exec(t.Date, t.Type, t.Amount, t.Currency, t.Category, t.AmountEUR); err != nil {
			return fmt.Errorf("failed to stage transaction: %w", err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("failed to flush transactions: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// ListTransactions retrieves all historical bank transactions in date order
func (r *Repository) ListTransactions() ([]models.Transaction, error) {
	query := `
		SELECT id, date, type, amount, currency, category, amount_eur
		FROM cashflow.transactions
		ORDER BY date, id`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Type, &t.Amount, &t.Currency, &t.Category, &t.AmountEUR); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading transactions: %w", err)
	}
	return transactions, nil
}

// SaveInvoices bulk-inserts invoices of one kind ("sales" or "purchase")
func (r *Repository) SaveInvoices(invoices []models.Invoice) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO cashflow.invoices (kind, status, issue_date, due_date, payment_date, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, inv := range invoices {
		if _, err := tx.Exec(query, inv.Kind, inv.Status, inv.IssueDate, inv.DueDate, inv.PaymentDate, inv.Amount, inv.Currency); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoices: %w", err)
	}
	return nil
}

// ListInvoices retrieves invoices of one kind
func (r *Repository) ListInvoices(kind string) ([]models.Invoice, error) {
	query := `
		SELECT id, kind, status, issue_date, due_date, payment_date, amount, currency
		FROM cashflow.invoices
		WHERE kind = $1
		ORDER BY due_date NULLS LAST, id`
	rows, err := r.db.Query(query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.Kind, &inv.Status, &inv.IssueDate, &inv.DueDate, &inv.PaymentDate, &inv.Amount, &inv.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading invoices: %w", err)
	}
	return invoices, nil
}

// SaveForecastRun persists a run summary and its daily records atomically
func (r *Repository) SaveForecastRun(run *models.ForecastRun, records []forecast.DailyRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	summary := `
		INSERT INTO cashflow.forecast_runs
			(id, created_at, start_date, end_date, days_count, initial_balance, final_balance,
			 final_balance_net, safe_days, warning_days, critical_days, worst_day_date, worst_day_net, reconciled)
		VALUES ($1, CURRENT_TIMESTAMP, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`
	err = tx.QueryRow(summary,
		run.ID, run.StartDate, run.EndDate, run.DaysCount, run.InitialBalance, run.FinalBalance,
		run.FinalBalanceNet, run.SafeDays, run.WarningDays, run.CriticalDays,
		run.WorstDayDate, run.WorstDayNet, run.Reconciled,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save forecast run: %w", err)
	}

	day := `
		INSERT INTO cashflow.forecast_days
			(run_id, date, weekday, inflow_eur, outflow_eur, net_flow_eur,
			 net_eur, net_usd, net_jpy, cumulative_eur, net_of_debt_eur, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for _, rec := range records {
		if _, err := tx.Exec(day,
			run.ID, rec.Date, rec.Weekday, rec.InflowEUR, rec.OutflowEUR, rec.NetFlowEUR,
			rec.NetFlow.EUR, rec.NetFlow.USD, rec.NetFlow.JPY,
			rec.CumulativeEUR, rec.NetOfDebtEUR, rec.RiskLevel,
		); err != nil {
			return fmt.Errorf("failed to save forecast day: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit forecast run: %w", err)
	}
	return nil
}

// GetLatestForecastRun retrieves the most recently created run summary
func (r *Repository) GetLatestForecastRun() (*models.ForecastRun, error) {
	run := &models.ForecastRun{}
	query := `
		SELECT id, created_at, start_date, end_date, days_count, initial_balance, final_balance,
		       final_balance_net, safe_days, warning_days, critical_days, worst_day_date, worst_day_net, reconciled
		FROM cashflow.forecast_runs
		ORDER BY created_at DESC
		LIMIT 1`
	err := r.db.QueryRow(query).Scan(
		&run.ID, &run.CreatedAt, &run.StartDate, &run.EndDate, &run.DaysCount,
		&run.InitialBalance, &run.FinalBalance, &run.FinalBalanceNet,
		&run.SafeDays, &run.WarningDays, &run.CriticalDays,
		&run.WorstDayDate, &run.WorstDayNet, &run.Reconciled,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no forecast run found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecast run: %w", err)
	}
	return run, nil
}
