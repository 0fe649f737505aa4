// Package agentmodel holds the agent record arbitrated over: identity,
// preferences, currency balance, and per-resource min/ideal requests and
// current allocations.
package agentmodel

import (
	"fmt"

	"github.com/shopspring/decimal"

	"arbiter/pkg/resource"
	"arbiter/pkg/utility"
)

// MinBalance is the floor an agent's currency balance may never cross; it
// bounds how much an agent can burn in a single round.
var MinBalance = decimal.NewFromInt(-100)

// Agent is the unit the arbitrator competes over: an identity, a utility
// form expressing its preferences across resource kinds, a currency
// balance, and per-resource min/ideal requests plus whatever allocation the
// most recent round assigned it.
type Agent struct {
	ID   string
	Name string

	Preferences utility.Form
	Balance     decimal.Decimal

	MinRequest   map[resource.Kind]int64
	IdealRequest map[resource.Kind]int64
	Allocation   map[resource.Kind]int64
}

// ValidationError reports a malformed agent record.
type ValidationError struct {
	AgentID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agentmodel: agent %q: %s", e.AgentID, e.Reason)
}

// New constructs an Agent, validating that min[k] <= ideal[k] for every
// tracked resource kind and that the opening balance respects MinBalance.
func New(id, name string, prefs utility.Form, balance decimal.Decimal, minRequest, idealRequest map[resource.Kind]int64) (*Agent, error) {
	if id == "" {
		return nil, &ValidationError{AgentID: id, Reason: "id must not be empty"}
	}
	if prefs == nil {
		return nil, &ValidationError{AgentID: id, Reason: "preferences must not be nil"}
	}
	if balance.LessThan(MinBalance) {
		return nil, &ValidationError{AgentID: id, Reason: fmt.Sprintf("opening balance %s below MIN_BALANCE %s", balance, MinBalance)}
	}
	minCopy := make(map[resource.Kind]int64, len(minRequest))
	idealCopy := make(map[resource.Kind]int64, len(idealRequest))
	for k, v := range minRequest {
		if v < 0 {
			return nil, &ValidationError{AgentID: id, Reason: fmt.Sprintf("negative min request for %s", k)}
		}
		minCopy[k] = v
	}
	for k, v := range idealRequest {
		if v < 0 {
			return nil, &ValidationError{AgentID: id, Reason: fmt.Sprintf("negative ideal request for %s", k)}
		}
		idealCopy[k] = v
	}
	for k, min := range minCopy {
		if idealCopy[k] < min {
			return nil, &ValidationError{AgentID: id, Reason: fmt.Sprintf("min[%s]=%d exceeds ideal[%s]=%d", k, min, k, idealCopy[k])}
		}
	}
	return &Agent{
		ID:           id,
		Name:         name,
		Preferences:  prefs,
		Balance:      balance,
		MinRequest:   minCopy,
		IdealRequest: idealCopy,
		Allocation:   make(map[resource.Kind]int64, len(idealCopy)),
	}, nil
}

// Min returns the agent's minimum request for k, 0 if untracked.
func (a *Agent) Min(k resource.Kind) int64 { return a.MinRequest[k] }

// Ideal returns the agent's ideal request for k, 0 if untracked.
func (a *Agent) Ideal(k resource.Kind) int64 { return a.IdealRequest[k] }

// Alloc returns the agent's current allocation for k, 0 if untracked.
func (a *Agent) Alloc(k resource.Kind) int64 { return a.Allocation[k] }

// MaxBurn returns the most this agent may burn this round without crossing
// MinBalance: balance − MIN_BALANCE.
func (a *Agent) MaxBurn() decimal.Decimal {
	headroom := a.Balance.Sub(MinBalance)
	if headroom.IsNegative() {
		return decimal.Zero
	}
	return headroom
}

// Burn destroys b units of currency from the agent's balance, clamped to
// MaxBurn so the balance never crosses MIN_BALANCE. It returns the amount
// actually burned.
func (a *Agent) Burn(b decimal.Decimal) decimal.Decimal {
	if b.IsNegative() {
		b = decimal.Zero
	}
	max := a.MaxBurn()
	if b.GreaterThan(max) {
		b = max
	}
	a.Balance = a.Balance.Sub(b)
	return b
}

// Credit adds earned currency to the agent's balance; earning is never
// negative and never destroyed, unlike a burn.
func (a *Agent) Credit(amount decimal.Decimal) {
	if amount.IsNegative() {
		return
	}
	a.Balance = a.Balance.Add(amount)
}

// UtilityAt evaluates the agent's preference form over alloc, converting integer per-kind allocations to the float map the
// utility package operates on.
func (a *Agent) UtilityAt(alloc map[resource.Kind]int64) float64 {
	f := make(map[resource.Kind]float64, len(alloc))
	for k, v := range alloc {
		f[k] = float64(v)
	}
	return a.Preferences.Evaluate(f)
}
