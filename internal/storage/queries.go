// Package storage is the SQLite persistence layer. Queries holds the
// hand-written statement methods; it runs against either the pool or an open
// transaction, so services can compose multi-step updates into one atomic
// unit.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finbook/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// --- users ---

func (q *Queries) CreateUser(ctx context.Context, name, currency string, lowBalanceThresholdCents int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO users (name, currency, low_balance_threshold_cents) VALUES (?, ?, ?)`,
		name, currency, lowBalanceThresholdCents)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	var createdAt string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, currency, low_balance_threshold_cents, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Currency, &u.LowBalanceThresholdCents, &createdAt)
	if err != nil {
		return core.User{}, wrapNotFound(err)
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (q *Queries) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- accounts ---

func (q *Queries) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, type, balance_cents, initial_balance_cents,
		    credit_limit_cents, currency, active, include_in_net_worth)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, string(a.Type), a.Balance.Cents, a.InitialBalance.Cents,
		nullInt(a.CreditLimitCents), a.Currency, boolToInt(a.Active), boolToInt(a.IncludeInNetWorth))
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return res.LastInsertId()
}

const accountColumns = `id, user_id, name, type, balance_cents, initial_balance_cents,
	credit_limit_cents, currency, active, include_in_net_worth, deleted_at, created_at`

func scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var a core.Account
	var typ, createdAt string
	var creditLimit sql.NullInt64
	var deletedAt sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &typ, &a.Balance.Cents, &a.InitialBalance.Cents,
		&creditLimit, &a.Currency, &a.Active, &a.IncludeInNetWorth, &deletedAt, &createdAt)
	if err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.CreditLimitCents = scanIntPtr(creditLimit)
	a.DeletedAt = scanTimePtr(deletedAt)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return core.Account{}, wrapNotFound(err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND deleted_at IS NULL ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AddToAccountBalance applies a signed delta to the stored balance.
func (q *Queries) AddToAccountBalance(ctx context.Context, id, deltaCents int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`, deltaCents, id)
	if err != nil {
		return fmt.Errorf("adjust account balance: %w", err)
	}
	return nil
}

func (q *Queries) SetAccountBalance(ctx context.Context, id, cents int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ? WHERE id = ?`, cents, id)
	if err != nil {
		return fmt.Errorf("set account balance: %w", err)
	}
	return nil
}

// SoftDeleteAccount marks the account removed; rows keep referencing it.
func (q *Queries) SoftDeleteAccount(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET active = 0, deleted_at = ? WHERE id = ?`, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("soft delete account: %w", err)
	}
	return nil
}

// AccountSignedSum recomputes the signed transaction sum for one account
// from scratch: +income, -expense, per-leg transfer signs, skipping pending
// rows and split children (the parent alone carries the movement).
func (q *Queries) AccountSignedSum(ctx context.Context, accountID int64) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE
			WHEN type = 'income' THEN amount_cents
			WHEN type = 'expense' THEN -amount_cents
			WHEN type = 'transfer' AND transfer_leg = 'in' THEN amount_cents
			WHEN type = 'transfer' THEN -amount_cents
		END), 0)
		FROM transactions
		WHERE account_id = ? AND pending = 0 AND parent_transaction_id IS NULL`, accountID).
		Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("account signed sum: %w", err)
	}
	return sum, nil
}

// --- categories ---

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	var owner any
	if id, owned := c.Owner.Owner(); owned {
		owner = id
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, parent_id, name, type, active) VALUES (?, ?, ?, ?, ?)`,
		owner, nullInt(c.ParentID), c.Name, string(c.Type), boolToInt(c.Active))
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return res.LastInsertId()
}

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var c core.Category
	var userID, parentID sql.NullInt64
	var typ string
	err := row.Scan(&c.ID, &userID, &parentID, &c.Name, &typ, &c.Active)
	if err != nil {
		return core.Category{}, err
	}
	if userID.Valid {
		c.Owner = core.OwnedCategory(userID.Int64)
	} else {
		c.Owner = core.SharedCategory()
	}
	c.ParentID = scanIntPtr(parentID)
	c.Type = core.CategoryType(typ)
	return c, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx,
		`SELECT id, user_id, parent_id, name, type, active FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, wrapNotFound(err)
	}
	return c, nil
}

// ListCategories returns the shared categories plus the user's own.
func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, parent_id, name, type, active FROM categories
		 WHERE user_id IS NULL OR user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (q *Queries) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE categories SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set category active: %w", err)
	}
	return nil
}

// --- transactions ---

const transactionColumns = `id, user_id, account_id, category_id, type, amount_cents,
	transaction_date, description, pending, is_split, parent_transaction_id,
	transfer_account_id, transfer_transaction_id, transfer_leg,
	recurring_transaction_id, bill_id, created_at`

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var leg any
	if t.TransferLeg != nil {
		leg = string(*t.TransferLeg)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, account_id, category_id, type, amount_cents,
		    transaction_date, description, pending, is_split, parent_transaction_id,
		    transfer_account_id, transfer_transaction_id, transfer_leg,
		    recurring_transaction_id, bill_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.AccountID, nullInt(t.CategoryID), string(t.Type), t.Amount.Cents,
		fmtDate(t.Date), t.Description, boolToInt(t.Pending), boolToInt(t.IsSplit),
		nullInt(t.ParentTransactionID), nullInt(t.TransferAccountID),
		nullInt(t.TransferTransactionID), leg,
		nullInt(t.RecurringTransactionID), nullInt(t.BillID))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return res.LastInsertId()
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	var typ, txDate, createdAt string
	var categoryID, parentID, transferAccountID, transferTxID, recurringID, billID sql.NullInt64
	var leg sql.NullString
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &categoryID, &typ, &t.Amount.Cents,
		&txDate, &t.Description, &t.Pending, &t.IsSplit, &parentID,
		&transferAccountID, &transferTxID, &leg, &recurringID, &billID, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = scanIntPtr(categoryID)
	t.Type = core.TransactionType(typ)
	t.Date = parseDate(txDate)
	t.ParentTransactionID = scanIntPtr(parentID)
	t.TransferAccountID = scanIntPtr(transferAccountID)
	t.TransferTransactionID = scanIntPtr(transferTxID)
	if leg.Valid {
		l := core.TransferLeg(leg.String)
		t.TransferLeg = &l
	}
	t.RecurringTransactionID = scanIntPtr(recurringID)
	t.BillID = scanIntPtr(billID)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, wrapNotFound(err)
	}
	return t, nil
}

// UpdateTransactionRow rewrites every mutable column of one row.
func (q *Queries) UpdateTransactionRow(ctx context.Context, t core.Transaction) error {
	var leg any
	if t.TransferLeg != nil {
		leg = string(*t.TransferLeg)
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET account_id = ?, category_id = ?, type = ?, amount_cents = ?,
		    transaction_date = ?, description = ?, pending = ?, is_split = ?,
		    transfer_account_id = ?, transfer_transaction_id = ?, transfer_leg = ?
		 WHERE id = ?`,
		t.AccountID, nullInt(t.CategoryID), string(t.Type), t.Amount.Cents,
		fmtDate(t.Date), t.Description, boolToInt(t.Pending), boolToInt(t.IsSplit),
		nullInt(t.TransferAccountID), nullInt(t.TransferTransactionID), leg, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (q *Queries) DeleteTransactionRow(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (q *Queries) ListChildren(ctx context.Context, parentID int64) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE parent_transaction_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list split children: %w", err)
	}
	defer rows.Close()
	var children []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	return children, rows.Err()
}

func (q *Queries) DeleteChildren(ctx context.Context, parentID int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE parent_transaction_id = ?`, parentID)
	if err != nil {
		return fmt.Errorf("delete split children: %w", err)
	}
	return nil
}

// SetTransferLink points a transfer leg at its counterpart row.
// UpdateChildRows moves every child of a split parent to the given account,
// date, and pending state, keeping them in step with the parent.
func (q *Queries) UpdateChildRows(ctx context.Context, parentID, accountID int64, date time.Time, pending bool) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET account_id = ?, transaction_date = ?, pending = ?
		 WHERE parent_transaction_id = ?`,
		accountID, fmtDate(date), boolToInt(pending), parentID)
	if err != nil {
		return fmt.Errorf("update split children: %w", err)
	}
	return nil
}

func (q *Queries) SetTransferLink(ctx context.Context, id, counterpartID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET transfer_transaction_id = ? WHERE id = ?`, counterpartID, id)
	if err != nil {
		return fmt.Errorf("link transfer legs: %w", err)
	}
	return nil
}

func (q *Queries) ClearTransferLink(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET transfer_transaction_id = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("unlink transfer leg: %w", err)
	}
	return nil
}

func (q *Queries) SetSplitFlag(ctx context.Context, id int64, split bool) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET is_split = ? WHERE id = ?`, boolToInt(split), id)
	if err != nil {
		return fmt.Errorf("set split flag: %w", err)
	}
	return nil
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? ORDER BY transaction_date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account transactions: %w", err)
	}
	defer rows.Close()
	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SumBudgetCategorySpent re-sums the cleared expenses charged to one
// allocation inside the budget window: exact category matches, plus child
// categories that have no allocation of their own in this budget.
func (q *Queries) SumBudgetCategorySpent(ctx context.Context, userID, budgetID, categoryID int64, start, end time.Time) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(t.amount_cents), 0)
		FROM transactions t
		WHERE t.user_id = ? AND t.type = 'expense' AND t.pending = 0 AND t.is_split = 0
		  AND t.transaction_date >= ? AND t.transaction_date <= ?
		  AND (t.category_id = ?
		       OR (t.category_id IN (SELECT id FROM categories WHERE parent_id = ?)
		           AND t.category_id NOT IN (SELECT category_id FROM budget_categories WHERE budget_id = ?)))`,
		userID, fmtDate(start), fmtDate(end), categoryID, categoryID, budgetID).
		Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum allocation spent: %w", err)
	}
	return sum, nil
}

// SumUserTransactions totals cleared income and expenses inside a window.
// Split parents are excluded (their children carry the categories), so the
// child rows sum to the same totals.
func (q *Queries) SumUserTransactions(ctx context.Context, userID int64, start, end time.Time) (income, expenses int64, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT
		    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
		    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		FROM transactions
		WHERE user_id = ? AND pending = 0 AND is_split = 0
		  AND transaction_date >= ? AND transaction_date <= ?`,
		userID, fmtDate(start), fmtDate(end)).
		Scan(&income, &expenses)
	if err != nil {
		return 0, 0, fmt.Errorf("sum user transactions: %w", err)
	}
	return income, expenses, nil
}

// ExpensesByCategory aggregates cleared expense totals per category name for
// one window.
func (q *Queries) ExpensesByCategory(ctx context.Context, userID int64, start, end time.Time) ([]core.CategoryAmount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.name, SUM(t.amount_cents)
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.type = 'expense' AND t.pending = 0 AND t.is_split = 0
		  AND t.transaction_date >= ? AND t.transaction_date <= ?
		GROUP BY c.name
		ORDER BY SUM(t.amount_cents) DESC`,
		userID, fmtDate(start), fmtDate(end))
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()
	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, err
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}
