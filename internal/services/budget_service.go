package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/storage"
)

// BudgetService manages budget periods and their category allocations. The
// spent counters are maintained incrementally by transaction side effects;
// this service owns their creation, adjustment, and full recomputation.
type BudgetService struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewBudgetService(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *BudgetService {
	return &BudgetService{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

// CreateBudget rejects a period that overlaps another of the user's active
// budgets. Paused and completed budgets do not block.
func (s *BudgetService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.Status == "" {
		b.Status = core.BudgetActive
	}
	if b.AlertThreshold == 0 {
		b.AlertThreshold = core.DefaultAlertThreshold
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	if b.Status == core.BudgetActive {
		n, err := s.repo.Queries().CountOverlappingActiveBudgets(ctx, b.UserID, b.StartDate, b.EndDate, 0)
		if err != nil {
			return core.Budget{}, err
		}
		if n > 0 {
			return core.Budget{}, core.ErrBudgetOverlap
		}
	}

	id, err := s.repo.Queries().InsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = id

	slog.InfoContext(ctx, "Budget created",
		"budget_id", id,
		"start", b.StartDate.Format("2006-01-02"),
		"end", b.EndDate.Format("2006-01-02"),
		"planned_expenses_cents", b.PlannedExpenses.Cents)
	return b, nil
}

func (s *BudgetService) GetBudget(ctx context.Context, userID, id int64) (core.Budget, error) {
	b, err := s.repo.Queries().GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}
	if b.UserID != userID {
		return core.Budget{}, core.ErrNotOwner
	}
	return b, nil
}

// SetStatus moves a budget between active, paused, and completed.
// Re-activating re-checks the overlap rule.
func (s *BudgetService) SetStatus(ctx context.Context, userID, id int64, status core.BudgetStatus) error {
	b, err := s.GetBudget(ctx, userID, id)
	if err != nil {
		return err
	}
	if b.Status == status {
		return nil
	}
	if status == core.BudgetActive {
		n, err := s.repo.Queries().CountOverlappingActiveBudgets(ctx, userID, b.StartDate, b.EndDate, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.ErrBudgetOverlap
		}
	}
	return s.repo.Queries().UpdateBudgetStatus(ctx, id, status)
}

// CreateAllocation adds a category allocation to a budget. The initial spent
// is computed from the expenses already recorded inside the period, so an
// allocation added mid-month starts with the right number.
func (s *BudgetService) CreateAllocation(ctx context.Context, userID, budgetID, categoryID int64, allocated core.Money) (core.BudgetCategory, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	category, err := s.repo.Queries().GetCategory(ctx, categoryID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if !category.Owner.VisibleTo(userID) {
		return core.BudgetCategory{}, core.ErrNotOwner
	}
	if category.Type != core.CategoryExpense {
		return core.BudgetCategory{}, core.Invalid("category_id", core.ErrTypeMismatch)
	}
	if allocated.Cents < 0 {
		return core.BudgetCategory{}, core.Invalid("allocated", core.ErrInvalidAmount)
	}

	sum, err := s.repo.Queries().SumAllocations(ctx, budgetID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if b.PlannedExpenses.Cents > 0 && sum+allocated.Cents > b.PlannedExpenses.Cents {
		return core.BudgetCategory{}, core.ErrAllocationExceeds
	}

	bc := core.BudgetCategory{
		BudgetID:   budgetID,
		CategoryID: categoryID,
		Allocated:  allocated,
	}
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		id, err := q.InsertBudgetCategory(ctx, bc)
		if err != nil {
			return err
		}
		bc.ID = id
		spent, err := q.SumBudgetCategorySpent(ctx, userID, budgetID, categoryID, b.StartDate, b.EndDate)
		if err != nil {
			return err
		}
		bc.Spent = core.Money{Cents: spent}
		bc.Recalculate()
		return q.UpdateBudgetCategoryAmounts(ctx, bc)
	})
	if err != nil {
		return core.BudgetCategory{}, err
	}

	slog.InfoContext(ctx, "Allocation created",
		"budget_id", budgetID,
		"category_id", categoryID,
		"allocated_cents", allocated.Cents,
		"initial_spent_cents", bc.Spent.Cents)
	return bc, nil
}

// AdjustAllocation changes an allocation's amount. The note is recorded in
// the audit log inside the same database transaction.
func (s *BudgetService) AdjustAllocation(ctx context.Context, userID, allocationID int64, allocated core.Money, note string) (core.BudgetCategory, error) {
	bc, err := s.repo.Queries().GetBudgetCategory(ctx, allocationID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	b, err := s.GetBudget(ctx, userID, bc.BudgetID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if allocated.Cents < 0 {
		return core.BudgetCategory{}, core.Invalid("allocated", core.ErrInvalidAmount)
	}

	sum, err := s.repo.Queries().SumAllocations(ctx, bc.BudgetID)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	if b.PlannedExpenses.Cents > 0 && sum-bc.Allocated.Cents+allocated.Cents > b.PlannedExpenses.Cents {
		return core.BudgetCategory{}, core.ErrAllocationExceeds
	}

	old := bc.Allocated
	bc.Allocated = allocated
	bc.Recalculate()
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := q.UpdateBudgetCategoryAmounts(ctx, bc); err != nil {
			return err
		}
		return q.InsertAuditLog(ctx, core.AuditEntry{
			UserID:     &userID,
			EntityType: "budget_category",
			EntityID:   bc.ID,
			Action:     "adjust_allocation",
			Detail:     fmt.Sprintf("%d -> %d cents: %s", old.Cents, allocated.Cents, note),
		})
	})
	if err != nil {
		return core.BudgetCategory{}, err
	}
	return bc, nil
}

// TransferUnused moves unspent allocation from one category to another in
// the same budget. A zero amount means the whole remainder.
func (s *BudgetService) TransferUnused(ctx context.Context, userID, fromID, toID int64, amount core.Money) error {
	if fromID == toID {
		return core.Invalid("to", errors.New("source and destination are the same allocation"))
	}
	from, err := s.repo.Queries().GetBudgetCategory(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := s.repo.Queries().GetBudgetCategory(ctx, toID)
	if err != nil {
		return err
	}
	if from.BudgetID != to.BudgetID {
		return core.Invalid("to", errors.New("allocations belong to different budgets"))
	}
	if _, err := s.GetBudget(ctx, userID, from.BudgetID); err != nil {
		return err
	}

	if amount.Cents == 0 {
		amount = from.Remaining
	}
	if amount.Cents <= 0 || amount.Cents > from.Remaining.Cents {
		return core.Invalid("amount", errors.New("amount exceeds the unspent remainder"))
	}

	from.Allocated = from.Allocated.Sub(amount)
	from.Recalculate()
	to.Allocated = to.Allocated.Add(amount)
	to.Recalculate()

	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := q.UpdateBudgetCategoryAmounts(ctx, from); err != nil {
			return err
		}
		if err := q.UpdateBudgetCategoryAmounts(ctx, to); err != nil {
			return err
		}
		return q.InsertAuditLog(ctx, core.AuditEntry{
			UserID:     &userID,
			EntityType: "budget_category",
			EntityID:   fromID,
			Action:     "transfer_unused",
			Detail:     fmt.Sprintf("moved %d cents to allocation %d", amount.Cents, toID),
		})
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Allocation transferred",
		"budget_id", from.BudgetID,
		"from", fromID,
		"to", toID,
		"amount_cents", amount.Cents)
	return nil
}

// RecalculateSpent re-sums every allocation of a budget from the transaction
// table, replacing the incrementally maintained counters. This is the
// recovery path when drift is suspected.
func (s *BudgetService) RecalculateSpent(ctx context.Context, userID, budgetID int64) ([]core.BudgetCategory, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return nil, err
	}

	var out []core.BudgetCategory
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		allocations, err := q.ListBudgetCategories(ctx, budgetID)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, bc := range allocations {
			spent, err := q.SumBudgetCategorySpent(ctx, userID, budgetID, bc.CategoryID, b.StartDate, b.EndDate)
			if err != nil {
				return err
			}
			if spent != bc.Spent.Cents {
				slog.WarnContext(ctx, "Allocation spent corrected",
					"budget_id", budgetID,
					"category_id", bc.CategoryID,
					"stored_cents", bc.Spent.Cents,
					"computed_cents", spent)
			}
			bc.Spent = core.Money{Cents: spent}
			bc.Recalculate()
			if err := q.UpdateBudgetCategoryAmounts(ctx, bc); err != nil {
				return err
			}
			out = append(out, bc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BudgetActuals compares a budget's plan with the cleared transactions
// recorded inside its period.
type BudgetActuals struct {
	PlannedIncome   core.Money
	ActualIncome    core.Money
	PlannedExpenses core.Money
	ActualExpenses  core.Money
}

// Actuals sums the owner's cleared transactions inside the budget window.
func (s *BudgetService) Actuals(ctx context.Context, userID, budgetID int64) (BudgetActuals, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return BudgetActuals{}, err
	}
	income, expenses, err := s.repo.Queries().SumUserTransactions(ctx, userID, b.StartDate, b.EndDate)
	if err != nil {
		return BudgetActuals{}, err
	}
	return BudgetActuals{
		PlannedIncome:   b.PlannedIncome,
		ActualIncome:    core.Money{Cents: income},
		PlannedExpenses: b.PlannedExpenses,
		ActualExpenses:  core.Money{Cents: expenses},
	}, nil
}

// AllocationOverview pairs each allocation with its classification against
// the budget's alert threshold.
type AllocationOverview struct {
	core.BudgetCategory
	Status string
}

func (s *BudgetService) Overview(ctx context.Context, userID, budgetID int64) ([]AllocationOverview, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return nil, err
	}
	allocations, err := s.repo.Queries().ListBudgetCategories(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	out := make([]AllocationOverview, 0, len(allocations))
	for _, bc := range allocations {
		out = append(out, AllocationOverview{
			BudgetCategory: bc,
			Status:         core.AllocationStatus(bc.UsagePercentage, b.AlertThreshold),
		})
	}
	return out, nil
}
