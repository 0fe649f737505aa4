package agentmodel

// GetStrategyName returns a human-readable label for the agent's current
// aggressiveness level. It is a pure read of State — nothing here adjusts
// aggressiveness from observed payoffs or market signals; burn and bid
// decisions are the external StrategyCollaborator's job, not the core's.
func (s *State) GetStrategyName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strategyNameFor(s.Aggressiveness)
}

func strategyNameFor(aggressiveness float64) string {
	switch {
	case aggressiveness > 0.7:
		return "aggressive"
	case aggressiveness < 0.3:
		return "conservative"
	default:
		return "cooperative"
	}
}

// ComputeStrategyAdjustment returns the demand multiplier implied by the
// agent's current strategy name: aggressive bids 20% over base demand,
// conservative bids 10% under, cooperative bids at base demand.
func (s *State) ComputeStrategyAdjustment() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch strategyNameFor(s.Aggressiveness) {
	case "aggressive":
		return 1.2
	case "conservative":
		return 0.9
	default:
		return 1.0
	}
}

// ResetStrategy resets strategy parameters to the moderate defaults.
func (s *State) ResetStrategy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aggressiveness = 0.5
	s.CooperationLevel = 0.5
}

// GetStrategyParams returns the current aggressiveness and cooperation
// level.
func (s *State) GetStrategyParams() (aggressiveness, cooperationLevel float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggressiveness, s.CooperationLevel
}
