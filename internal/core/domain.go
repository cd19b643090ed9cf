package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	AccountType     string
	CategoryType    string
	TransactionType string
	TransferLeg     string
	BudgetStatus    string
	ScheduleStatus  string
	GoalStatus      string
)

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountCash       AccountType = "cash"
)

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

const (
	CategoryIncome   CategoryType = "income"
	CategoryExpense  CategoryType = "expense"
	CategoryTransfer CategoryType = "transfer"
)

const (
	TransferOut TransferLeg = "out"
	TransferIn  TransferLeg = "in"
)

const (
	BudgetActive    BudgetStatus = "active"
	BudgetCompleted BudgetStatus = "completed"
	BudgetPaused    BudgetStatus = "paused"
)

const (
	ScheduleActive    ScheduleStatus = "active"
	SchedulePaused    ScheduleStatus = "paused"
	ScheduleCancelled ScheduleStatus = "cancelled"
	ScheduleCompleted ScheduleStatus = "completed"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

// DefaultAlertThreshold is the budget alert threshold percentage used when
// none is configured.
const DefaultAlertThreshold = 80

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrInvalidDateRange   = errors.New("end date must be after start date")
	ErrNotFound           = errors.New("not found")
	ErrNotOwner           = errors.New("entity belongs to another user")
	ErrTypeMismatch       = errors.New("category type does not match")
	ErrSameAccount        = errors.New("transfer source and destination are the same account")
	ErrSplitSumMismatch   = errors.New("split amounts do not sum to the parent amount")
	ErrBudgetOverlap      = errors.New("overlapping active budget for this period")
	ErrAllocationExceeds  = errors.New("allocations exceed planned expenses")
	ErrTerminalStatus     = errors.New("status is terminal")
	ErrSystemCategory     = errors.New("system categories cannot be modified")
)

// ValidationError carries field-level detail for out-of-policy input. It is
// returned before any mutation takes place.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps a sentinel error with the offending field name.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// User owns every other entity and carries preferences consulted by the
// derived metrics (low balance threshold, display currency).
type User struct {
	ID                       int64
	Name                     string
	Currency                 string
	LowBalanceThresholdCents int64
	CreatedAt                time.Time
}

// Account holds a money balance. Type determines asset/liability
// classification; credit_limit is only meaningful for credit accounts.
type Account struct {
	ID                int64
	UserID            int64
	Name              string
	Type              AccountType
	Balance           Money
	InitialBalance    Money
	CreditLimitCents  *int64
	Currency          string
	Active            bool
	IncludeInNetWorth bool
	DeletedAt         *time.Time
	CreatedAt         time.Time
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountInvestment, AccountLoan, AccountCash:
		return true
	}
	return false
}

// IsLiability reports whether balances on this account type count against
// net worth.
func (t AccountType) IsLiability() bool {
	return t == AccountCredit || t == AccountLoan
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !a.Type.Valid() {
		return Invalid("type", ErrInvalidAccountType)
	}
	if a.CreditLimitCents != nil && a.Type != AccountCredit {
		return Invalid("credit_limit", errors.New("only credit accounts carry a credit limit"))
	}
	return nil
}

// CategoryOwner distinguishes user-owned categories from shared system
// categories as an exhaustive pair rather than a nullable foreign key.
type CategoryOwner struct {
	userID int64
	shared bool
}

func SharedCategory() CategoryOwner {
	return CategoryOwner{shared: true}
}

func OwnedCategory(userID int64) CategoryOwner {
	return CategoryOwner{userID: userID}
}

// Owner returns the owning user ID and false for shared categories.
func (o CategoryOwner) Owner() (int64, bool) {
	if o.shared {
		return 0, false
	}
	return o.userID, true
}

// Shared reports whether the category is a system-wide one.
func (o CategoryOwner) Shared() bool { return o.shared }

// VisibleTo reports whether a user may reference this category.
func (o CategoryOwner) VisibleTo(userID int64) bool {
	return o.shared || o.userID == userID
}

// Category is a hierarchical label, at most two levels deep: a category with
// a parent must itself have no parent.
type Category struct {
	ID       int64
	Owner    CategoryOwner
	ParentID *int64
	Name     string
	Type     CategoryType
	Active   bool
}

func (t CategoryType) Valid() bool {
	switch t {
	case CategoryIncome, CategoryExpense, CategoryTransfer:
		return true
	}
	return false
}

// Matches reports whether the category may tag a transaction of the given type.
func (t CategoryType) Matches(tt TransactionType) bool {
	return string(t) == string(tt)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !c.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	return nil
}

// Transaction is a single money movement. Transfers are stored as two linked
// legs, one per account, each carrying the signed effect for its own account.
type Transaction struct {
	ID                     int64
	UserID                 int64
	AccountID              int64
	CategoryID             *int64
	Type                   TransactionType
	Amount                 Money
	Date                   time.Time
	Description            string
	Pending                bool
	IsSplit                bool
	ParentTransactionID    *int64
	TransferAccountID      *int64
	TransferTransactionID  *int64
	TransferLeg            *TransferLeg
	RecurringTransactionID *int64
	BillID                 *int64
	CreatedAt              time.Time
}

// IsChild reports whether this row is a split child.
func (t Transaction) IsChild() bool { return t.ParentTransactionID != nil }

// BalanceDelta is the signed contribution of this row to its own account's
// balance: +amount for income, -amount for expense, per-leg sign for
// transfers. Pending rows and split children contribute nothing; a split
// parent keeps carrying the single balance effect for the whole movement.
func (t Transaction) BalanceDelta() int64 {
	if t.Pending || t.IsChild() {
		return 0
	}
	switch t.Type {
	case TypeIncome:
		return t.Amount.Cents
	case TypeExpense:
		return -t.Amount.Cents
	case TypeTransfer:
		if t.TransferLeg != nil && *t.TransferLeg == TransferIn {
			return t.Amount.Cents
		}
		return -t.Amount.Cents
	}
	return 0
}

// CountsAgainstBudget reports whether this row charges a budget allocation.
// Only cleared expenses count, and once a parent is split the attribution
// moves to its children.
func (t Transaction) CountsAgainstBudget() bool {
	return t.Type == TypeExpense && !t.Pending && !t.IsSplit
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if t.Date.IsZero() {
		return Invalid("transaction_date", errors.New("date cannot be zero"))
	}
	switch t.Type {
	case TypeIncome, TypeExpense:
		if t.TransferAccountID != nil {
			return Invalid("transfer_account_id", errors.New("only transfers carry a counterpart account"))
		}
	case TypeTransfer:
		if t.TransferAccountID == nil {
			return Invalid("transfer_account_id", errors.New("transfers require a counterpart account"))
		}
		if *t.TransferAccountID == t.AccountID {
			return Invalid("transfer_account_id", ErrSameAccount)
		}
	default:
		return Invalid("type", ErrInvalidType)
	}
	if len(t.Description) > 200 {
		return Invalid("description", errors.New("description too long (max 200 characters)"))
	}
	return nil
}

// Budget is a date-bounded plan. Active budgets of one owner never overlap;
// paused and completed budgets are unrestricted.
type Budget struct {
	ID              int64
	UserID          int64
	Name            string
	StartDate       time.Time
	EndDate         time.Time
	PlannedIncome   Money
	PlannedExpenses Money
	Status          BudgetStatus
	AlertThreshold  int
	CreatedAt       time.Time
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if !b.EndDate.After(b.StartDate) {
		return Invalid("end_date", ErrInvalidDateRange)
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 100 {
		return Invalid("alert_threshold", errors.New("threshold must be between 0 and 100"))
	}
	return nil
}

// Covers reports whether the date falls inside the budget period, inclusive
// on both ends.
func (b Budget) Covers(date time.Time) bool {
	return !date.Before(b.StartDate) && !date.After(b.EndDate)
}

// Overlaps reports whether two periods share at least one day.
func (b Budget) Overlaps(start, end time.Time) bool {
	return !b.EndDate.Before(start) && !b.StartDate.After(end)
}

// BudgetCategory is the allocation of planned spending to one expense
// category inside a budget period. Spent is maintained incrementally by
// transaction side effects; remaining and usage are recomputed on every
// change.
type BudgetCategory struct {
	ID              int64
	BudgetID        int64
	CategoryID      int64
	Allocated       Money
	Spent           Money
	Remaining       Money
	UsagePercentage float64
}

// Recalculate refreshes the derived remaining/usage fields from allocated
// and spent.
func (bc *BudgetCategory) Recalculate() {
	bc.Remaining = bc.Allocated.Sub(bc.Spent)
	bc.UsagePercentage = UsagePercent(bc.Spent.Cents, bc.Allocated.Cents)
}

// AllocationStatus classifies an allocation's health given its usage and the
// budget's alert threshold.
func AllocationStatus(usage float64, threshold int) string {
	switch {
	case usage >= 100:
		return "overspent"
	case usage >= float64(threshold):
		return "warning"
	case usage >= 50:
		return "good"
	default:
		return "excellent"
	}
}

// Goal is a savings target, optionally tied to an account. It completes
// exactly when current reaches target; completed_at is set once and
// excess_amount captures the overflow.
type Goal struct {
	ID            int64
	UserID        int64
	AccountID     *int64
	Name          string
	TargetAmount  Money
	CurrentAmount Money
	ExcessAmount  Money
	TargetDate    time.Time
	Status        GoalStatus
	CompletedAt   *time.Time
	CreatedAt     time.Time
}

// Progress returns the completion percentage, capped at 100.
func (g Goal) Progress() float64 {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount.Cents) * 100 / float64(g.TargetAmount.Cents)
	if p > 100 {
		return 100
	}
	return p
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return Invalid("target_amount", err)
	}
	return nil
}
