package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/storage"
)

// GoalService tracks savings targets. A goal completes the moment its
// current amount reaches the target; completed_at is set exactly once and
// the portion past the target lands in excess_amount.
type GoalService struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewGoalService(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *GoalService {
	return &GoalService{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

func (s *GoalService) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if g.AccountID != nil {
		account, err := s.repo.Queries().GetAccount(ctx, *g.AccountID)
		if err != nil {
			return core.Goal{}, err
		}
		if account.UserID != g.UserID {
			return core.Goal{}, core.ErrNotOwner
		}
	}

	id, err := s.repo.Queries().InsertGoal(ctx, g)
	if err != nil {
		return core.Goal{}, err
	}
	g.ID = id

	slog.InfoContext(ctx, "Goal created",
		"goal_id", id,
		"target_cents", g.TargetAmount.Cents)
	return g, nil
}

func (s *GoalService) GetGoal(ctx context.Context, userID, id int64) (core.Goal, error) {
	g, err := s.repo.Queries().GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	if g.UserID != userID {
		return core.Goal{}, core.ErrNotOwner
	}
	return g, nil
}

func (s *GoalService) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	return s.repo.Queries().ListGoals(ctx, userID)
}

// AddAmount contributes toward an active goal. Reaching the target marks the
// goal completed and stamps completed_at once; the current amount keeps the
// full contributed sum and excess_amount records the portion past the target.
func (s *GoalService) AddAmount(ctx context.Context, userID, goalID int64, amount core.Money) (core.Goal, error) {
	if err := amount.Validate(); err != nil {
		return core.Goal{}, core.Invalid("amount", err)
	}
	g, err := s.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if g.Status != core.GoalActive {
		return core.Goal{}, core.Invalid("status", errors.New("goal is not active"))
	}

	g.CurrentAmount = g.CurrentAmount.Add(amount)
	completed := false
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		g.ExcessAmount = core.Money{Cents: g.CurrentAmount.Cents - g.TargetAmount.Cents}
		g.Status = core.GoalCompleted
		if g.CompletedAt == nil {
			// Stored timestamps carry second precision; truncate so the
			// returned value round-trips unchanged.
			now := time.Now().UTC().Truncate(time.Second)
			g.CompletedAt = &now
		}
		completed = true
	}

	if err := s.repo.Queries().UpdateGoalProgress(ctx, g); err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal contribution recorded",
		"goal_id", goalID,
		"amount_cents", amount.Cents,
		"current_cents", g.CurrentAmount.Cents,
		"completed", completed)

	if completed {
		s.publishCompleted(ctx, g)
	}
	return g, nil
}

// SetStatus pauses or resumes a goal. Completed goals stay completed.
func (s *GoalService) SetStatus(ctx context.Context, userID, goalID int64, status core.GoalStatus) (core.Goal, error) {
	g, err := s.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if g.Status == core.GoalCompleted {
		return core.Goal{}, core.ErrTerminalStatus
	}
	if status != core.GoalActive && status != core.GoalPaused {
		return core.Goal{}, core.Invalid("status", errors.New("goals move only between active and paused"))
	}
	g.Status = status
	if err := s.repo.Queries().UpdateGoalProgress(ctx, g); err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func (s *GoalService) publishCompleted(ctx context.Context, g core.Goal) {
	if s.amqpClient == nil {
		return
	}
	ev := amqp.NewEvent(amqp.EventGoalCompleted, g.UserID, "goal", g.ID).
		WithAmount(g.TargetAmount.Cents).
		WithDetail(g.Name)
	if err := s.amqpClient.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish goal completion",
			"goal_id", g.ID, "error", err)
	}
}
