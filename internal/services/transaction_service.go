// Package services orchestrates the domain operations across SQLite and
// AMQP. Every mutation that touches more than one row runs inside a single
// database transaction; events are published only after the commit.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/storage"
)

// TransactionService owns the transaction lifecycle: creation, the
// reverse-then-apply update, deletion with transfer and split handling, and
// category splits. Account balances and budget spent counters are maintained
// as side effects inside the same database transaction as the row change.
type TransactionService struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewTransactionService(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *TransactionService {
	return &TransactionService{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

// SplitPart is one child of a category split.
type SplitPart struct {
	CategoryID  *int64
	Amount      core.Money
	Description string
}

// budgetAlert is raised inside a transaction and published after commit.
type budgetAlert struct {
	budget    core.Budget
	usage     float64
	overspent bool
}

// CreateTransaction validates and persists an income or expense row together
// with its account and budget side effects. Transfers go through
// CreateTransfer.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.Type == core.TypeTransfer {
		return core.Transaction{}, core.Invalid("type", errors.New("transfers are created through CreateTransfer"))
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := checkAccount(ctx, s.repo.Queries(), t.UserID, t.AccountID); err != nil {
		return core.Transaction{}, err
	}
	if err := checkCategory(ctx, s.repo.Queries(), t.UserID, t.CategoryID, t.Type); err != nil {
		return core.Transaction{}, err
	}

	var alert *budgetAlert
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		id, a, err := insertWithEffects(ctx, q, t)
		if err != nil {
			return err
		}
		t.ID = id
		alert = a
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"account_id", t.AccountID,
		"pending", t.Pending)

	s.publish(ctx, amqp.NewEvent(amqp.EventTransactionCreated, t.UserID, "transaction", t.ID).
		WithAmount(t.Amount.Cents).WithDetail(string(t.Type)))
	s.publishBudgetAlert(ctx, t.UserID, alert)
	s.checkLowBalance(ctx, t.UserID, t.AccountID)

	return t, nil
}

// CreateTransfer moves money between two of the user's accounts as two
// linked rows, one per account, each carrying the signed effect for its own
// side. Deleting either leg later removes both.
func (s *TransactionService) CreateTransfer(ctx context.Context, userID, fromAccountID, toAccountID int64, amount core.Money, date time.Time, description string) (core.Transaction, core.Transaction, error) {
	if fromAccountID == toAccountID {
		return core.Transaction{}, core.Transaction{}, core.Invalid("transfer_account_id", core.ErrSameAccount)
	}
	if err := amount.Validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, core.Invalid("amount", err)
	}
	if err := checkAccount(ctx, s.repo.Queries(), userID, fromAccountID); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	if err := checkAccount(ctx, s.repo.Queries(), userID, toAccountID); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	outLeg, inLeg := core.TransferOut, core.TransferIn
	out := core.Transaction{
		UserID:            userID,
		AccountID:         fromAccountID,
		Type:              core.TypeTransfer,
		Amount:            amount,
		Date:              date,
		Description:       description,
		TransferAccountID: &toAccountID,
		TransferLeg:       &outLeg,
	}
	in := core.Transaction{
		UserID:            userID,
		AccountID:         toAccountID,
		Type:              core.TypeTransfer,
		Amount:            amount,
		Date:              date,
		Description:       description,
		TransferAccountID: &fromAccountID,
		TransferLeg:       &inLeg,
	}

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		outID, err := q.InsertTransaction(ctx, out)
		if err != nil {
			return err
		}
		inID, err := q.InsertTransaction(ctx, in)
		if err != nil {
			return err
		}
		if err := q.SetTransferLink(ctx, outID, inID); err != nil {
			return err
		}
		if err := q.SetTransferLink(ctx, inID, outID); err != nil {
			return err
		}
		if err := q.AddToAccountBalance(ctx, fromAccountID, -amount.Cents); err != nil {
			return err
		}
		if err := q.AddToAccountBalance(ctx, toAccountID, amount.Cents); err != nil {
			return err
		}
		out.ID, in.ID = outID, inID
		out.TransferTransactionID = &inID
		in.TransferTransactionID = &outID
		return nil
	})
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transfer created",
		"out_id", out.ID,
		"in_id", in.ID,
		"amount_cents", amount.Cents,
		"from_account", fromAccountID,
		"to_account", toAccountID)

	s.publish(ctx, amqp.NewEvent(amqp.EventTransferCreated, userID, "transaction", out.ID).
		WithAmount(amount.Cents))
	s.checkLowBalance(ctx, userID, fromAccountID)

	return out, in, nil
}

// UpdateTransaction replaces a row's mutable fields. It first reverses the
// old row's account and budget effects, then applies the new ones, all inside
// one database transaction, so amount, account, category, date, and pending
// changes all land consistently.
func (s *TransactionService) UpdateTransaction(ctx context.Context, updated core.Transaction) (core.Transaction, error) {
	old, err := s.repo.Queries().GetTransaction(ctx, updated.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	if old.UserID != updated.UserID {
		return core.Transaction{}, core.ErrNotOwner
	}
	if old.IsChild() {
		return core.Transaction{}, core.Invalid("id", errors.New("split children are edited through SplitIntoCategories"))
	}
	if old.Type == core.TypeTransfer {
		// Transfer legs stay structurally intact: only the description
		// and date may change. Amount or account changes are a delete
		// plus a new transfer.
		if updated.Amount.Cents != old.Amount.Cents || updated.AccountID != old.AccountID ||
			updated.Type != old.Type || updated.Pending != old.Pending {
			return core.Transaction{}, core.Invalid("type", errors.New("transfer legs only allow description and date changes"))
		}
	}
	if old.IsSplit {
		// A split parent's amount and type are pinned by its children.
		if updated.Amount.Cents != old.Amount.Cents || updated.Type != old.Type {
			return core.Transaction{}, core.Invalid("amount", errors.New("split parents require re-splitting to change amount"))
		}
	}
	// Carry structural fields forward; they are not updatable.
	updated.IsSplit = old.IsSplit
	updated.ParentTransactionID = old.ParentTransactionID
	updated.TransferAccountID = old.TransferAccountID
	updated.TransferTransactionID = old.TransferTransactionID
	updated.TransferLeg = old.TransferLeg

	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if updated.AccountID != old.AccountID {
		if err := checkAccount(ctx, s.repo.Queries(), updated.UserID, updated.AccountID); err != nil {
			return core.Transaction{}, err
		}
	}
	if updated.Type != core.TypeTransfer {
		if err := checkCategory(ctx, s.repo.Queries(), updated.UserID, updated.CategoryID, updated.Type); err != nil {
			return core.Transaction{}, err
		}
	}

	var alert *budgetAlert
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := reverseEffects(ctx, q, old); err != nil {
			return err
		}
		if err := q.UpdateTransactionRow(ctx, updated); err != nil {
			return err
		}
		if old.IsSplit {
			// Children follow the parent's account, date, and pending
			// state so budget attribution stays with them: their charges
			// are re-derived against the new values.
			children, err := q.ListChildren(ctx, old.ID)
			if err != nil {
				return err
			}
			for _, child := range children {
				if child.CountsAgainstBudget() {
					if err := chargeBudget(ctx, q, child, -1); err != nil {
						return err
					}
				}
			}
			if err := q.UpdateChildRows(ctx, old.ID, updated.AccountID, updated.Date, updated.Pending); err != nil {
				return err
			}
			for _, child := range children {
				child.AccountID = updated.AccountID
				child.Date = updated.Date
				child.Pending = updated.Pending
				if child.CountsAgainstBudget() {
					if err := chargeBudget(ctx, q, child, 1); err != nil {
						return err
					}
				}
			}
		}
		a, err := applyEffects(ctx, q, updated)
		if err != nil {
			return err
		}
		alert = a
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", updated.ID,
		"old_amount_cents", old.Amount.Cents,
		"new_amount_cents", updated.Amount.Cents)

	s.publish(ctx, amqp.NewEvent(amqp.EventTransactionUpdated, updated.UserID, "transaction", updated.ID).
		WithAmount(updated.Amount.Cents))
	s.publishBudgetAlert(ctx, updated.UserID, alert)
	s.checkLowBalance(ctx, updated.UserID, updated.AccountID)

	return updated, nil
}

// DeleteTransaction removes a row and reverses its side effects. Deleting a
// transfer leg removes its counterpart too; deleting a split parent cascades
// to its children.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	t, err := s.repo.Queries().GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return core.ErrNotOwner
	}
	if t.IsChild() {
		return core.Invalid("id", errors.New("split children are removed through Unsplit or parent deletion"))
	}

	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		if t.Type == core.TypeTransfer && t.TransferTransactionID != nil {
			// Break this leg's link first so deleting the counterpart does
			// not trip the self-referencing constraint.
			if err := q.ClearTransferLink(ctx, t.ID); err != nil {
				return err
			}
			other, err := q.GetTransaction(ctx, *t.TransferTransactionID)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return err
			}
			if err == nil {
				if err := q.AddToAccountBalance(ctx, other.AccountID, -other.BalanceDelta()); err != nil {
					return err
				}
				if err := q.DeleteTransactionRow(ctx, other.ID); err != nil {
					return err
				}
			}
		}
		if err := reverseEffects(ctx, q, t); err != nil {
			return err
		}
		if t.IsSplit {
			if err := reverseChildCharges(ctx, q, t); err != nil {
				return err
			}
			if err := q.DeleteChildren(ctx, t.ID); err != nil {
				return err
			}
		}
		return q.DeleteTransactionRow(ctx, t.ID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"type", t.Type,
		"amount_cents", t.Amount.Cents)

	s.publish(ctx, amqp.NewEvent(amqp.EventTransactionDeleted, userID, "transaction", id).
		WithAmount(t.Amount.Cents).WithDetail(string(t.Type)))
	return nil
}

// SplitIntoCategories divides an expense across categories as child rows.
// The parent keeps the single account-balance effect; budget attribution
// moves from the parent's category to the children's. Re-splitting replaces
// the previous children. Part amounts must sum to the parent amount within
// the rounding tolerance.
func (s *TransactionService) SplitIntoCategories(ctx context.Context, userID, parentID int64, parts []SplitPart) ([]core.Transaction, error) {
	if len(parts) < 2 {
		return nil, core.Invalid("parts", errors.New("a split needs at least two parts"))
	}
	parent, err := s.repo.Queries().GetTransaction(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.UserID != userID {
		return nil, core.ErrNotOwner
	}
	if parent.Type != core.TypeExpense {
		return nil, core.Invalid("type", errors.New("only expenses can be split"))
	}
	if parent.IsChild() {
		return nil, core.Invalid("id", errors.New("split children cannot be split again"))
	}

	var sum int64
	for _, p := range parts {
		if err := p.Amount.Validate(); err != nil {
			return nil, core.Invalid("parts", err)
		}
		if err := checkCategory(ctx, s.repo.Queries(), userID, p.CategoryID, core.TypeExpense); err != nil {
			return nil, err
		}
		sum += p.Amount.Cents
	}
	if diff := sum - parent.Amount.Cents; diff > core.SplitToleranceCents || diff < -core.SplitToleranceCents {
		return nil, core.Invalid("parts", core.ErrSplitSumMismatch)
	}

	var children []core.Transaction
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		// Re-split: drop previous children and their budget charges.
		if parent.IsSplit {
			if err := reverseChildCharges(ctx, q, parent); err != nil {
				return err
			}
			if err := q.DeleteChildren(ctx, parent.ID); err != nil {
				return err
			}
		} else if parent.CountsAgainstBudget() {
			// First split: the parent stops charging its own category.
			if err := chargeBudget(ctx, q, parent, -1); err != nil {
				return err
			}
		}

		children = children[:0]
		for _, p := range parts {
			child := core.Transaction{
				UserID:              userID,
				AccountID:           parent.AccountID,
				CategoryID:          p.CategoryID,
				Type:                core.TypeExpense,
				Amount:              p.Amount,
				Date:                parent.Date,
				Description:         p.Description,
				Pending:             parent.Pending,
				ParentTransactionID: &parent.ID,
			}
			id, err := q.InsertTransaction(ctx, child)
			if err != nil {
				return err
			}
			child.ID = id
			if child.CountsAgainstBudget() {
				if err := chargeBudget(ctx, q, child, 1); err != nil {
					return err
				}
			}
			children = append(children, child)
		}
		return q.SetSplitFlag(ctx, parent.ID, true)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Transaction split",
		"transaction_id", parent.ID,
		"parts", len(parts),
		"amount_cents", parent.Amount.Cents)

	s.publish(ctx, amqp.NewEvent(amqp.EventTransactionSplit, userID, "transaction", parent.ID).
		WithAmount(parent.Amount.Cents).WithDetail(fmt.Sprintf("%d parts", len(parts))))

	return children, nil
}

// Unsplit removes a parent's children and moves budget attribution back to
// the parent's own category.
func (s *TransactionService) Unsplit(ctx context.Context, userID, parentID int64) error {
	parent, err := s.repo.Queries().GetTransaction(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.UserID != userID {
		return core.ErrNotOwner
	}
	if !parent.IsSplit {
		return core.Invalid("id", errors.New("transaction is not split"))
	}

	return s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := reverseChildCharges(ctx, q, parent); err != nil {
			return err
		}
		if err := q.DeleteChildren(ctx, parent.ID); err != nil {
			return err
		}
		if err := q.SetSplitFlag(ctx, parent.ID, false); err != nil {
			return err
		}
		parent.IsSplit = false
		if parent.CountsAgainstBudget() {
			return chargeBudget(ctx, q, parent, 1)
		}
		return nil
	})
}

// --- shared in-transaction helpers, used by the schedule processors too ---

// insertWithEffects writes a transaction row plus its account balance and
// budget side effects inside the caller's database transaction.
func insertWithEffects(ctx context.Context, q *storage.Queries, t core.Transaction) (int64, *budgetAlert, error) {
	id, err := q.InsertTransaction(ctx, t)
	if err != nil {
		return 0, nil, err
	}
	t.ID = id
	alert, err := applyEffects(ctx, q, t)
	if err != nil {
		return 0, nil, err
	}
	return id, alert, nil
}

func applyEffects(ctx context.Context, q *storage.Queries, t core.Transaction) (*budgetAlert, error) {
	if delta := t.BalanceDelta(); delta != 0 {
		if err := q.AddToAccountBalance(ctx, t.AccountID, delta); err != nil {
			return nil, err
		}
	}
	if t.CountsAgainstBudget() {
		alert, err := chargeBudgetWithAlert(ctx, q, t)
		if err != nil {
			return nil, err
		}
		return alert, nil
	}
	return nil, nil
}

func reverseEffects(ctx context.Context, q *storage.Queries, t core.Transaction) error {
	if delta := t.BalanceDelta(); delta != 0 {
		if err := q.AddToAccountBalance(ctx, t.AccountID, -delta); err != nil {
			return err
		}
	}
	if t.CountsAgainstBudget() {
		return chargeBudget(ctx, q, t, -1)
	}
	return nil
}

// reverseChildCharges undoes the budget charges of a split parent's children.
func reverseChildCharges(ctx context.Context, q *storage.Queries, parent core.Transaction) error {
	children, err := q.ListChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Type == core.TypeExpense && !child.Pending {
			if err := chargeBudget(ctx, q, child, -1); err != nil {
				return err
			}
		}
	}
	return nil
}

// chargeBudget adjusts the spent counter of the allocation covering the
// transaction's category by sign*amount. No active budget or no allocation
// means no charge.
func chargeBudget(ctx context.Context, q *storage.Queries, t core.Transaction, sign int64) error {
	_, err := adjustAllocationSpent(ctx, q, t, sign)
	return err
}

func chargeBudgetWithAlert(ctx context.Context, q *storage.Queries, t core.Transaction) (*budgetAlert, error) {
	return adjustAllocationSpent(ctx, q, t, 1)
}

func adjustAllocationSpent(ctx context.Context, q *storage.Queries, t core.Transaction, sign int64) (*budgetAlert, error) {
	if t.CategoryID == nil {
		return nil, nil
	}
	budget, err := q.FindActiveBudgetCovering(ctx, t.UserID, t.Date)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bc, err := q.GetAllocationForCategory(ctx, budget.ID, *t.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	before := bc.UsagePercentage
	bc.Spent = core.Money{Cents: bc.Spent.Cents + sign*t.Amount.Cents}
	bc.Recalculate()
	if err := q.UpdateBudgetCategoryAmounts(ctx, bc); err != nil {
		return nil, err
	}

	// Alert exactly when a charge crosses the threshold or the limit.
	if sign > 0 {
		threshold := float64(budget.AlertThreshold)
		if bc.UsagePercentage >= 100 && before < 100 {
			return &budgetAlert{budget: budget, usage: bc.UsagePercentage, overspent: true}, nil
		}
		if bc.UsagePercentage >= threshold && before < threshold {
			return &budgetAlert{budget: budget, usage: bc.UsagePercentage}, nil
		}
	}
	return nil, nil
}

// --- ownership and reference checks, shared with the bill and recurring
// --- processors: anything that records a transaction goes through these ---

func checkAccount(ctx context.Context, q *storage.Queries, userID, accountID int64) error {
	account, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.UserID != userID {
		return core.ErrNotOwner
	}
	if !account.Active || account.DeletedAt != nil {
		return core.Invalid("account_id", errors.New("account is not active"))
	}
	return nil
}

func checkCategory(ctx context.Context, q *storage.Queries, userID int64, categoryID *int64, txType core.TransactionType) error {
	if categoryID == nil {
		return nil
	}
	category, err := q.GetCategory(ctx, *categoryID)
	if err != nil {
		return err
	}
	if !category.Owner.VisibleTo(userID) {
		return core.ErrNotOwner
	}
	if !category.Active {
		return core.Invalid("category_id", errors.New("category is not active"))
	}
	if !category.Type.Matches(txType) {
		return core.Invalid("category_id", core.ErrTypeMismatch)
	}
	return nil
}

// --- event publication, all best-effort after commit ---

func (s *TransactionService) publish(ctx context.Context, ev *amqp.Event) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", ev.Type, "entity_id", ev.EntityID, "error", err)
	}
}

func (s *TransactionService) publishBudgetAlert(ctx context.Context, userID int64, alert *budgetAlert) {
	if alert == nil {
		return
	}
	eventType := amqp.EventBudgetAlert
	if alert.overspent {
		eventType = amqp.EventBudgetOverspent
	}
	s.publish(ctx, amqp.NewEvent(eventType, userID, "budget", alert.budget.ID).
		WithDetail(fmt.Sprintf("usage %.1f%%", alert.usage)))
}

func (s *TransactionService) checkLowBalance(ctx context.Context, userID, accountID int64) {
	account, err := s.repo.Queries().GetAccount(ctx, accountID)
	if err != nil {
		return
	}
	user, err := s.repo.Queries().GetUser(ctx, userID)
	if err != nil {
		return
	}
	if account.HasLowBalance(user.LowBalanceThresholdCents) {
		s.publish(ctx, amqp.NewEvent(amqp.EventAccountLowBalance, userID, "account", accountID).
			WithAmount(account.Balance.Cents))
	}
}
