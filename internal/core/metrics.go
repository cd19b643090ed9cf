package core

// Derived account metrics. These are read-only computations; the stored
// balance is only ever mutated through transaction side effects or explicit
// reconciliation.

// AvailableCredit returns max(0, credit_limit - balance) for credit
// accounts, and 0 for everything else.
func (a Account) AvailableCredit() int64 {
	if a.Type != AccountCredit || a.CreditLimitCents == nil {
		return 0
	}
	avail := *a.CreditLimitCents - a.Balance.Cents
	if avail < 0 {
		return 0
	}
	return avail
}

// CreditUtilization returns 100*balance/credit_limit for credit accounts
// with a non-zero limit.
func (a Account) CreditUtilization() float64 {
	if a.Type != AccountCredit || a.CreditLimitCents == nil || *a.CreditLimitCents == 0 {
		return 0
	}
	return float64(a.Balance.Cents) * 100 / float64(*a.CreditLimitCents)
}

// NetWorthContribution is +balance for asset accounts, -balance for
// liability accounts, and 0 for accounts excluded from net worth.
func (a Account) NetWorthContribution() int64 {
	if !a.IncludeInNetWorth {
		return 0
	}
	if a.Type.IsLiability() {
		return -a.Balance.Cents
	}
	return a.Balance.Cents
}

// HasLowBalance reports whether the balance fell under the owner's
// threshold. Only asset-type, non-credit accounts are ever low.
func (a Account) HasLowBalance(thresholdCents int64) bool {
	if a.Type.IsLiability() {
		return false
	}
	return a.Balance.Cents < thresholdCents
}
