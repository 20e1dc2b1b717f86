package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		username VARCHAR(80) PRIMARY KEY,
		name VARCHAR(80) NOT NULL DEFAULT '',
		surname VARCHAR(80) NOT NULL DEFAULT '',
		password VARCHAR(80) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS cash_accounts (
		id BIGSERIAL PRIMARY KEY,
		number VARCHAR(80) NOT NULL,
		username VARCHAR(80) NOT NULL,
		description VARCHAR(80) NOT NULL DEFAULT '',
		available_balance NUMERIC(20, 2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS cash_accounts_number_idx ON cash_accounts (number)`,
	`CREATE TABLE IF NOT EXISTS credit_accounts (
		id BIGSERIAL PRIMARY KEY,
		cash_account_id BIGINT NOT NULL REFERENCES cash_accounts (id),
		number VARCHAR(80) NOT NULL,
		username VARCHAR(80) NOT NULL,
		description VARCHAR(80) NOT NULL DEFAULT '',
		available_balance NUMERIC(20, 2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id VARCHAR(36) PRIMARY KEY,
		from_account VARCHAR(80) NOT NULL,
		to_account VARCHAR(80) NOT NULL,
		description VARCHAR(80) NOT NULL DEFAULT '',
		amount NUMERIC(20, 2) NOT NULL,
		fee NUMERIC(20, 2) NOT NULL,
		username VARCHAR(80) NOT NULL,
		date TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id BIGSERIAL PRIMARY KEY,
		number VARCHAR(80) NOT NULL,
		description VARCHAR(80) NOT NULL,
		amount NUMERIC(20, 2) NOT NULL,
		available_balance NUMERIC(20, 2) NOT NULL,
		date TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS activities_number_idx ON activities (number)`,
}

// Postgres is the relational ledger. All statements are parameter-bound.
type Postgres struct {
	db       *sql.DB
	lockRows bool
}

type PostgresOption func(*Postgres)

// WithRowLocking makes balance reads inside Atomic take a row lock
// (SELECT ... FOR UPDATE), closing the lost-update window between
// concurrent transfers on the same account.
func WithRowLocking(enabled bool) PostgresOption {
	return func(p *Postgres) { p.lockRows = enabled }
}

// creates a new Postgres instance
func NewPostgres(connStr string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// initialize the database schema
func (p *Postgres) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Atomic(ctx context.Context, fn func(tx LedgerTx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: tx, lockRows: p.lockRows}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO accounts (username, name, surname, password) VALUES ($1, $2, $3, $4)",
		a.Username, a.Name, a.Surname, a.Password,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", models.ErrUserExists, a.Username)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (p *Postgres) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := p.db.QueryRowContext(ctx,
		"SELECT username, name, surname, password FROM accounts WHERE username = $1",
		username,
	).Scan(&a.Username, &a.Name, &a.Surname, &a.Password)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (p *Postgres) CreateCashAccount(ctx context.Context, ca *models.CashAccount) error {
	err := p.db.QueryRowContext(ctx, `
	INSERT INTO cash_accounts (number, username, description, available_balance)
	VALUES ($1, $2, $3, $4)
	RETURNING id`,
		ca.Number, ca.Username, ca.Description, ca.AvailableBalance,
	).Scan(&ca.ID)
	if err != nil {
		return fmt.Errorf("failed to create cash account: %w", err)
	}
	return nil
}

func (p *Postgres) CreateCreditAccount(ctx context.Context, ca *models.CreditAccount) error {
	err := p.db.QueryRowContext(ctx, `
	INSERT INTO credit_accounts (cash_account_id, number, username, description, available_balance)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`,
		ca.CashAccountID, ca.Number, ca.Username, ca.Description, ca.AvailableBalance,
	).Scan(&ca.ID)
	if err != nil {
		return fmt.Errorf("failed to create credit account: %w", err)
	}
	return nil
}

func (p *Postgres) CashAccountByNumber(ctx context.Context, number string) (*models.CashAccount, error) {
	var ca models.CashAccount
	err := p.db.QueryRowContext(ctx, `
	SELECT id, number, username, description, available_balance
	FROM cash_accounts
	WHERE number = $1
	ORDER BY id
	LIMIT 1`, number,
	).Scan(&ca.ID, &ca.Number, &ca.Username, &ca.Description, &ca.AvailableBalance)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
		}
		return nil, fmt.Errorf("failed to get cash account: %w", err)
	}
	return &ca, nil
}

func (p *Postgres) CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error) {
	return cashAccountsByUsername(ctx, p.db, username)
}

func (p *Postgres) CreditAccountsByUsername(ctx context.Context, username string) ([]models.CreditAccount, error) {
	rows, err := p.db.QueryContext(ctx, `
	SELECT id, cash_account_id, number, username, description, available_balance
	FROM credit_accounts
	WHERE username = $1
	ORDER BY id`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find credit accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.CreditAccount{}
	for rows.Next() {
		var ca models.CreditAccount
		if err := rows.Scan(&ca.ID, &ca.CashAccountID, &ca.Number, &ca.Username, &ca.Description, &ca.AvailableBalance); err != nil {
			return nil, fmt.Errorf("failed to scan credit account: %w", err)
		}
		accounts = append(accounts, ca)
	}
	return accounts, rows.Err()
}

// ActivityByNumber returns the newest records first.
func (p *Postgres) ActivityByNumber(ctx context.Context, number string, limit, offset int) ([]models.ActivityRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
	SELECT id, number, description, amount, available_balance, date
	FROM activities
	WHERE number = $1
	ORDER BY id DESC
	LIMIT $2 OFFSET $3`, number, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find activity: %w", err)
	}
	defer rows.Close()

	records := []models.ActivityRecord{}
	for rows.Next() {
		var rec models.ActivityRecord
		if err := rows.Scan(&rec.ID, &rec.Number, &rec.Description, &rec.Amount, &rec.AvailableBalance, &rec.Date); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *Postgres) TransfersByUsername(ctx context.Context, username string, limit, offset int) ([]models.Transfer, error) {
	rows, err := p.db.QueryContext(ctx, `
	SELECT id, from_account, to_account, description, amount, fee, username, date
	FROM transfers
	WHERE username = $1
	ORDER BY date DESC, id
	LIMIT $2 OFFSET $3`, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find transfers: %w", err)
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.FromAccount, &t.ToAccount, &t.Description, &t.Amount, &t.Fee, &t.Username, &t.Date); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func cashAccountsByUsername(ctx context.Context, q queryer, username string) ([]models.CashAccount, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT id, number, username, description, available_balance
	FROM cash_accounts
	WHERE username = $1
	ORDER BY id`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find cash accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.CashAccount{}
	for rows.Next() {
		var ca models.CashAccount
		if err := rows.Scan(&ca.ID, &ca.Number, &ca.Username, &ca.Description, &ca.AvailableBalance); err != nil {
			return nil, fmt.Errorf("failed to scan cash account: %w", err)
		}
		accounts = append(accounts, ca)
	}
	return accounts, rows.Err()
}

// pgTx is the LedgerTx handed to Atomic callbacks.
type pgTx struct {
	tx       *sql.Tx
	lockRows bool
}

func (t *pgTx) lookup(ctx context.Context, column, number string) *sql.Row {
	query := "SELECT " + column + " FROM cash_accounts WHERE number = $1 ORDER BY id LIMIT 1"
	if t.lockRows {
		query += " FOR UPDATE"
	}
	return t.tx.QueryRowContext(ctx, query, number)
}

func (t *pgTx) CurrentBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := t.lookup(ctx, "available_balance", number).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
		}
		return decimal.Zero, fmt.Errorf("failed to get current balance: %w", err)
	}
	return balance, nil
}

func (t *pgTx) AccountIdentifier(ctx context.Context, number string) (int64, error) {
	var id int64
	if err := t.lookup(ctx, "id", number).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%w: %s", models.ErrAccountNotFound, number)
		}
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}
	return id, nil
}

func (t *pgTx) WriteBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE cash_accounts SET available_balance = $1 WHERE id = $2",
		balance, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", models.ErrAccountNotFound, id)
	}
	return nil
}

func (t *pgTx) InsertActivity(ctx context.Context, rec *models.ActivityRecord) error {
	err := t.tx.QueryRowContext(ctx, `
	INSERT INTO activities (number, description, amount, available_balance, date)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`,
		rec.Number, rec.Description, rec.Amount, rec.AvailableBalance, rec.Date,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (t *pgTx) InsertTransfer(ctx context.Context, tr *models.Transfer) error {
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO transfers (id, from_account, to_account, description, amount, fee, username, date)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.FromAccount, tr.ToAccount, tr.Description, tr.Amount, tr.Fee, tr.Username, tr.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (t *pgTx) CashAccountsByUsername(ctx context.Context, username string) ([]models.CashAccount, error) {
	return cashAccountsByUsername(ctx, t.tx, username)
}
