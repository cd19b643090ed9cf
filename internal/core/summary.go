package core

import "time"

// CategoryAmount is an amount aggregated under one category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthlySummary aggregates a user's cleared income and expenses for one
// year+month. Transfers move money between the user's own accounts and are
// excluded.
type MonthlySummary struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expenses   Money
	Net        Money
	ByCategory []CategoryAmount
}

// NetWorth is the signed sum of account contributions at a point in time.
type NetWorth struct {
	Total       Money
	Assets      Money
	Liabilities Money
	AsOf        time.Time
}

// BalanceCheck is the result of a full balance reconciliation for one
// account.
type BalanceCheck struct {
	AccountID int64
	Stored    Money
	Computed  Money
	Corrected bool
}
