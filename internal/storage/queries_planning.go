package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finbook/internal/core"
)

// --- budgets ---

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, name, start_date, end_date,
		    planned_income_cents, planned_expenses_cents, status, alert_threshold)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Name, fmtDate(b.StartDate), fmtDate(b.EndDate),
		b.PlannedIncome.Cents, b.PlannedExpenses.Cents, string(b.Status), b.AlertThreshold)
	if err != nil {
		return 0, fmt.Errorf("insert budget: %w", err)
	}
	return res.LastInsertId()
}

const budgetColumns = `id, user_id, name, start_date, end_date,
	planned_income_cents, planned_expenses_cents, status, alert_threshold, created_at`

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var b core.Budget
	var start, end, status, createdAt string
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &start, &end,
		&b.PlannedIncome.Cents, &b.PlannedExpenses.Cents, &status, &b.AlertThreshold, &createdAt)
	if err != nil {
		return core.Budget{}, err
	}
	b.StartDate = parseDate(start)
	b.EndDate = parseDate(end)
	b.Status = core.BudgetStatus(status)
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

func (q *Queries) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, wrapNotFound(err)
	}
	return b, nil
}

func (q *Queries) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY start_date DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()
	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (q *Queries) UpdateBudgetStatus(ctx context.Context, id int64, status core.BudgetStatus) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE budgets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update budget status: %w", err)
	}
	return nil
}

// CountOverlappingActiveBudgets counts the user's other active budgets whose
// period shares at least one day with [start, end].
func (q *Queries) CountOverlappingActiveBudgets(ctx context.Context, userID int64, start, end time.Time, excludeID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budgets
		 WHERE user_id = ? AND status = 'active' AND id != ?
		   AND end_date >= ? AND start_date <= ?`,
		userID, excludeID, fmtDate(start), fmtDate(end)).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlapping budgets: %w", err)
	}
	return n, nil
}

// FindActiveBudgetCovering returns the user's active budget whose period
// contains the date, or ErrNotFound.
func (q *Queries) FindActiveBudgetCovering(ctx context.Context, userID int64, date time.Time) (core.Budget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		 WHERE user_id = ? AND status = 'active' AND start_date <= ? AND end_date >= ?
		 LIMIT 1`,
		userID, fmtDate(date), fmtDate(date)))
	if err != nil {
		return core.Budget{}, wrapNotFound(err)
	}
	return b, nil
}

// --- budget categories ---

func (q *Queries) InsertBudgetCategory(ctx context.Context, bc core.BudgetCategory) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO budget_categories (budget_id, category_id, allocated_cents,
		    spent_cents, remaining_cents, usage_percentage)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bc.BudgetID, bc.CategoryID, bc.Allocated.Cents,
		bc.Spent.Cents, bc.Remaining.Cents, bc.UsagePercentage)
	if err != nil {
		return 0, fmt.Errorf("insert budget category: %w", err)
	}
	return res.LastInsertId()
}

const budgetCategoryColumns = `id, budget_id, category_id, allocated_cents,
	spent_cents, remaining_cents, usage_percentage`

func scanBudgetCategory(row interface{ Scan(...any) error }) (core.BudgetCategory, error) {
	var bc core.BudgetCategory
	err := row.Scan(&bc.ID, &bc.BudgetID, &bc.CategoryID, &bc.Allocated.Cents,
		&bc.Spent.Cents, &bc.Remaining.Cents, &bc.UsagePercentage)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	return bc, nil
}

func (q *Queries) GetBudgetCategory(ctx context.Context, id int64) (core.BudgetCategory, error) {
	bc, err := scanBudgetCategory(q.db.QueryRowContext(ctx,
		`SELECT `+budgetCategoryColumns+` FROM budget_categories WHERE id = ?`, id))
	if err != nil {
		return core.BudgetCategory{}, wrapNotFound(err)
	}
	return bc, nil
}

// GetAllocationForCategory finds the allocation charged by an expense in the
// given category: the category's own allocation if present, otherwise its
// parent category's. ErrNotFound when neither exists.
func (q *Queries) GetAllocationForCategory(ctx context.Context, budgetID, categoryID int64) (core.BudgetCategory, error) {
	bc, err := scanBudgetCategory(q.db.QueryRowContext(ctx,
		`SELECT `+budgetCategoryColumns+` FROM budget_categories
		 WHERE budget_id = ? AND category_id = ?`, budgetID, categoryID))
	if err == nil {
		return bc, nil
	}
	if err != sql.ErrNoRows {
		return core.BudgetCategory{}, err
	}
	bc, err = scanBudgetCategory(q.db.QueryRowContext(ctx,
		`SELECT `+budgetCategoryColumns+` FROM budget_categories
		 WHERE budget_id = ?
		   AND category_id = (SELECT parent_id FROM categories WHERE id = ?)`,
		budgetID, categoryID))
	if err != nil {
		return core.BudgetCategory{}, wrapNotFound(err)
	}
	return bc, nil
}

// UpdateBudgetCategoryAmounts rewrites every money column of one allocation.
func (q *Queries) UpdateBudgetCategoryAmounts(ctx context.Context, bc core.BudgetCategory) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE budget_categories SET allocated_cents = ?, spent_cents = ?,
		    remaining_cents = ?, usage_percentage = ?
		 WHERE id = ?`,
		bc.Allocated.Cents, bc.Spent.Cents, bc.Remaining.Cents, bc.UsagePercentage, bc.ID)
	if err != nil {
		return fmt.Errorf("update budget category: %w", err)
	}
	return nil
}

func (q *Queries) SumAllocations(ctx context.Context, budgetID int64) (int64, error) {
	var sum int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(allocated_cents), 0) FROM budget_categories WHERE budget_id = ?`, budgetID).
		Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum allocations: %w", err)
	}
	return sum, nil
}

func (q *Queries) ListBudgetCategories(ctx context.Context, budgetID int64) ([]core.BudgetCategory, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetCategoryColumns+` FROM budget_categories WHERE budget_id = ? ORDER BY id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list budget categories: %w", err)
	}
	defer rows.Close()
	var out []core.BudgetCategory
	for rows.Next() {
		bc, err := scanBudgetCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// --- recurring transactions ---

func (q *Queries) InsertRecurringTransaction(ctx context.Context, rt core.RecurringTransaction) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions (user_id, account_id, category_id, type,
		    amount_cents, description, frequency, interval_days, anchor_day,
		    next_due_date, end_date, max_occurrences, occurrences_count,
		    auto_generate, generate_days_ahead, generate_as_pending,
		    total_generated_cents, last_generated_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.UserID, rt.AccountID, nullInt(rt.CategoryID), string(rt.Type),
		rt.Amount.Cents, rt.Description, string(rt.Schedule.Frequency),
		rt.Schedule.IntervalDays, rt.Schedule.AnchorDay,
		fmtDate(rt.Schedule.NextDueDate), nullDate(rt.Schedule.EndDate),
		nullIntVal(rt.Schedule.MaxOccurrences), rt.Schedule.OccurrencesCount,
		boolToInt(rt.Schedule.AutoGenerate), rt.Schedule.GenerateDaysAhead,
		boolToInt(rt.GenerateAsPending), rt.TotalGenerated.Cents,
		nullTime(rt.LastGeneratedAt), string(rt.Schedule.Status))
	if err != nil {
		return 0, fmt.Errorf("insert recurring transaction: %w", err)
	}
	return res.LastInsertId()
}

const recurringColumns = `id, user_id, account_id, category_id, type, amount_cents,
	description, frequency, interval_days, anchor_day, next_due_date, end_date,
	max_occurrences, occurrences_count, auto_generate, generate_days_ahead,
	generate_as_pending, total_generated_cents, last_generated_at, status, created_at`

func scanRecurring(row interface{ Scan(...any) error }) (core.RecurringTransaction, error) {
	var rt core.RecurringTransaction
	var categoryID, maxOcc sql.NullInt64
	var typ, freq, nextDue, status, createdAt string
	var endDate, lastGenerated sql.NullString
	err := row.Scan(&rt.ID, &rt.UserID, &rt.AccountID, &categoryID, &typ, &rt.Amount.Cents,
		&rt.Description, &freq, &rt.Schedule.IntervalDays, &rt.Schedule.AnchorDay,
		&nextDue, &endDate, &maxOcc, &rt.Schedule.OccurrencesCount,
		&rt.Schedule.AutoGenerate, &rt.Schedule.GenerateDaysAhead,
		&rt.GenerateAsPending, &rt.TotalGenerated.Cents, &lastGenerated, &status, &createdAt)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	rt.CategoryID = scanIntPtr(categoryID)
	rt.Type = core.TransactionType(typ)
	rt.Schedule.Frequency = core.Frequency(freq)
	rt.Schedule.NextDueDate = parseDate(nextDue)
	rt.Schedule.EndDate = scanDatePtr(endDate)
	if maxOcc.Valid {
		n := int(maxOcc.Int64)
		rt.Schedule.MaxOccurrences = &n
	}
	rt.Schedule.Status = core.ScheduleStatus(status)
	rt.LastGeneratedAt = scanTimePtr(lastGenerated)
	rt.CreatedAt = parseTime(createdAt)
	return rt, nil
}

func (q *Queries) GetRecurringTransaction(ctx context.Context, id int64) (core.RecurringTransaction, error) {
	rt, err := scanRecurring(q.db.QueryRowContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id))
	if err != nil {
		return core.RecurringTransaction{}, wrapNotFound(err)
	}
	return rt, nil
}

// ListActiveRecurring returns every active template; the caller decides which
// are due, so the look-ahead window stays in one place.
func (q *Queries) ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions
		 WHERE status = 'active' ORDER BY next_due_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list active recurring: %w", err)
	}
	defer rows.Close()
	var templates []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, rt)
	}
	return templates, rows.Err()
}

// UpdateRecurringAfterGeneration persists the advanced schedule plus the
// generation bookkeeping.
func (q *Queries) UpdateRecurringAfterGeneration(ctx context.Context, rt core.RecurringTransaction) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET next_due_date = ?, occurrences_count = ?,
		    total_generated_cents = ?, last_generated_at = ?, status = ?
		 WHERE id = ?`,
		fmtDate(rt.Schedule.NextDueDate), rt.Schedule.OccurrencesCount,
		rt.TotalGenerated.Cents, nullTime(rt.LastGeneratedAt),
		string(rt.Schedule.Status), rt.ID)
	if err != nil {
		return fmt.Errorf("update recurring after generation: %w", err)
	}
	return nil
}

func (q *Queries) UpdateRecurringStatus(ctx context.Context, id int64, status core.ScheduleStatus) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update recurring status: %w", err)
	}
	return nil
}

// --- bills ---

func (q *Queries) InsertBill(ctx context.Context, b core.Bill) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bills (user_id, account_id, category_id, name, amount_cents,
		    frequency, interval_days, anchor_day, next_due_date, end_date,
		    max_occurrences, occurrences_count, auto_pay, is_variable,
		    last_paid_date, last_paid_amount_cents, total_paid_cents, payment_count,
		    average_amount_cents, missed_payments, last_missed_due, reminder_days, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.AccountID, nullInt(b.CategoryID), b.Name, b.Amount.Cents,
		string(b.Schedule.Frequency), b.Schedule.IntervalDays, b.Schedule.AnchorDay,
		fmtDate(b.Schedule.NextDueDate), nullDate(b.Schedule.EndDate),
		nullIntVal(b.Schedule.MaxOccurrences), b.Schedule.OccurrencesCount,
		boolToInt(b.AutoPay), boolToInt(b.IsVariable),
		nullDate(b.LastPaidDate), b.LastPaidAmount.Cents, b.TotalPaid.Cents, b.PaymentCount,
		b.AverageAmount.Cents, b.MissedPayments, nullDate(b.LastMissedDue),
		b.ReminderDays, string(b.Schedule.Status))
	if err != nil {
		return 0, fmt.Errorf("insert bill: %w", err)
	}
	return res.LastInsertId()
}

const billColumns = `id, user_id, account_id, category_id, name, amount_cents,
	frequency, interval_days, anchor_day, next_due_date, end_date,
	max_occurrences, occurrences_count, auto_pay, is_variable,
	last_paid_date, last_paid_amount_cents, total_paid_cents, payment_count,
	average_amount_cents, missed_payments, last_missed_due, reminder_days, status, created_at`

func scanBill(row interface{ Scan(...any) error }) (core.Bill, error) {
	var b core.Bill
	var categoryID, maxOcc sql.NullInt64
	var freq, nextDue, status, createdAt string
	var endDate, lastPaid, lastMissed sql.NullString
	err := row.Scan(&b.ID, &b.UserID, &b.AccountID, &categoryID, &b.Name, &b.Amount.Cents,
		&freq, &b.Schedule.IntervalDays, &b.Schedule.AnchorDay,
		&nextDue, &endDate, &maxOcc, &b.Schedule.OccurrencesCount,
		&b.AutoPay, &b.IsVariable,
		&lastPaid, &b.LastPaidAmount.Cents, &b.TotalPaid.Cents, &b.PaymentCount,
		&b.AverageAmount.Cents, &b.MissedPayments, &lastMissed, &b.ReminderDays,
		&status, &createdAt)
	if err != nil {
		return core.Bill{}, err
	}
	b.CategoryID = scanIntPtr(categoryID)
	b.Schedule.Frequency = core.Frequency(freq)
	b.Schedule.NextDueDate = parseDate(nextDue)
	b.Schedule.EndDate = scanDatePtr(endDate)
	if maxOcc.Valid {
		n := int(maxOcc.Int64)
		b.Schedule.MaxOccurrences = &n
	}
	b.Schedule.Status = core.ScheduleStatus(status)
	b.LastPaidDate = scanDatePtr(lastPaid)
	b.LastMissedDue = scanDatePtr(lastMissed)
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

func (q *Queries) GetBill(ctx context.Context, id int64) (core.Bill, error) {
	b, err := scanBill(q.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE id = ?`, id))
	if err != nil {
		return core.Bill{}, wrapNotFound(err)
	}
	return b, nil
}

func (q *Queries) ListActiveBills(ctx context.Context) ([]core.Bill, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE status = 'active' ORDER BY next_due_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list active bills: %w", err)
	}
	defer rows.Close()
	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// UpdateBillAfterPayment persists the payment history fields plus the
// advanced schedule.
func (q *Queries) UpdateBillAfterPayment(ctx context.Context, b core.Bill) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bills SET next_due_date = ?, occurrences_count = ?,
		    last_paid_date = ?, last_paid_amount_cents = ?, total_paid_cents = ?,
		    payment_count = ?, average_amount_cents = ?, missed_payments = ?,
		    last_missed_due = ?, status = ?
		 WHERE id = ?`,
		fmtDate(b.Schedule.NextDueDate), b.Schedule.OccurrencesCount,
		nullDate(b.LastPaidDate), b.LastPaidAmount.Cents, b.TotalPaid.Cents,
		b.PaymentCount, b.AverageAmount.Cents, b.MissedPayments,
		nullDate(b.LastMissedDue), string(b.Schedule.Status), b.ID)
	if err != nil {
		return fmt.Errorf("update bill after payment: %w", err)
	}
	return nil
}

func (q *Queries) UpdateBillStatus(ctx context.Context, id int64, status core.ScheduleStatus) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bills SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update bill status: %w", err)
	}
	return nil
}

// MarkBillMissed increments the missed counter once per overdue due date.
// last_missed_due keeps the sweep idempotent.
func (q *Queries) MarkBillMissed(ctx context.Context, id int64, due time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bills SET missed_payments = missed_payments + 1, last_missed_due = ?
		 WHERE id = ?`, fmtDate(due), id)
	if err != nil {
		return fmt.Errorf("mark bill missed: %w", err)
	}
	return nil
}

// --- goals ---

func (q *Queries) InsertGoal(ctx context.Context, g core.Goal) (int64, error) {
	var targetDate any
	if !g.TargetDate.IsZero() {
		targetDate = fmtDate(g.TargetDate)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO goals (user_id, account_id, name, target_amount_cents,
		    current_amount_cents, excess_amount_cents, target_date, status, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, nullInt(g.AccountID), g.Name, g.TargetAmount.Cents,
		g.CurrentAmount.Cents, g.ExcessAmount.Cents, targetDate,
		string(g.Status), nullTime(g.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("insert goal: %w", err)
	}
	return res.LastInsertId()
}

const goalColumns = `id, user_id, account_id, name, target_amount_cents,
	current_amount_cents, excess_amount_cents, target_date, status, completed_at, created_at`

func scanGoal(row interface{ Scan(...any) error }) (core.Goal, error) {
	var g core.Goal
	var accountID sql.NullInt64
	var targetDate, completedAt sql.NullString
	var status, createdAt string
	err := row.Scan(&g.ID, &g.UserID, &accountID, &g.Name, &g.TargetAmount.Cents,
		&g.CurrentAmount.Cents, &g.ExcessAmount.Cents, &targetDate, &status,
		&completedAt, &createdAt)
	if err != nil {
		return core.Goal{}, err
	}
	g.AccountID = scanIntPtr(accountID)
	if targetDate.Valid {
		g.TargetDate = parseDate(targetDate.String)
	}
	g.Status = core.GoalStatus(status)
	g.CompletedAt = scanTimePtr(completedAt)
	g.CreatedAt = parseTime(createdAt)
	return g, nil
}

func (q *Queries) GetGoal(ctx context.Context, id int64) (core.Goal, error) {
	g, err := scanGoal(q.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err != nil {
		return core.Goal{}, wrapNotFound(err)
	}
	return g, nil
}

func (q *Queries) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()
	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (q *Queries) UpdateGoalProgress(ctx context.Context, g core.Goal) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE goals SET current_amount_cents = ?, excess_amount_cents = ?,
		    status = ?, completed_at = ?
		 WHERE id = ?`,
		g.CurrentAmount.Cents, g.ExcessAmount.Cents, string(g.Status),
		nullTime(g.CompletedAt), g.ID)
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	return nil
}

// --- audit log ---

func (q *Queries) InsertAuditLog(ctx context.Context, e core.AuditEntry) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, entity_type, entity_id, action, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		nullInt(e.UserID), e.EntityType, e.EntityID, e.Action, e.Detail)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (q *Queries) ListAuditLogByEntity(ctx context.Context, entityType string, entityID int64) ([]core.AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, action, detail, created_at
		 FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY id`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()
	var entries []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		var userID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &userID, &e.EntityType, &e.EntityID, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.UserID = scanIntPtr(userID)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIntVal(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
