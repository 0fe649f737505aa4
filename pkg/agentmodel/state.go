package agentmodel

import (
	"sync"
	"time"
)

// DecisionOutcome records the result of one round's allocation decision for
// an agent, kept for the agent's rolling performance history.
type DecisionOutcome struct {
	Timestamp    time.Time
	Allocation   int64
	Demand       int64
	ShadowPrice  float64
	Utility      float64
	SLOViolation bool
	Throttling   float64
	Strategy     string
}

// State is the per-agent memory the round driver consults when shaping an
// agent's next bid: recent outcomes and the two strategy parameters, which
// are set through SetAggressiveness and SetCooperationLevel (RecordOutcome
// never changes them). It never decides a burn amount itself — that decision belongs
// to the external StrategyCollaborator — it only tracks how an agent has
// been faring so a collaborator or the demo CLI can read it back.
type State struct {
	AgentID string
	mu      sync.RWMutex

	History        []DecisionOutcome
	maxHistorySize int

	Aggressiveness   float64
	CooperationLevel float64

	SLOViolations    int
	ThrottlingEvents int
	AvgUtility       float64
	TotalDecisions   int
}

// NewState creates agent state with a bounded history and moderate default
// strategy parameters.
func NewState(agentID string, maxHistorySize int) *State {
	return &State{
		AgentID:          agentID,
		maxHistorySize:   maxHistorySize,
		History:          make([]DecisionOutcome, 0, maxHistorySize),
		Aggressiveness:   0.5,
		CooperationLevel: 0.5,
	}
}

// RecordOutcome appends outcome to the history, evicting the oldest entry
// once maxHistorySize is exceeded, and updates the running performance
// counters (SLOViolations, ThrottlingEvents, an exponential moving average
// of utility with smoothing factor 0.1).
func (s *State) RecordOutcome(outcome DecisionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.History = append(s.History, outcome)
	if len(s.History) > s.maxHistorySize {
		s.History = s.History[1:]
	}

	s.TotalDecisions++
	if outcome.SLOViolation {
		s.SLOViolations++
	}
	if outcome.Throttling > 0.1 {
		s.ThrottlingEvents++
	}

	if s.TotalDecisions == 1 {
		s.AvgUtility = outcome.Utility
	} else {
		const alpha = 0.1
		s.AvgUtility = alpha*outcome.Utility + (1-alpha)*s.AvgUtility
	}
}

// GetRecentOutcomes returns the last n outcomes, oldest first.
func (s *State) GetRecentOutcomes(n int) []DecisionOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.History) {
		n = len(s.History)
	}
	if n == 0 {
		return nil
	}
	start := len(s.History) - n
	out := make([]DecisionOutcome, n)
	copy(out, s.History[start:])
	return out
}

// GetAggressiveness returns the current aggressiveness level, [0,1].
func (s *State) GetAggressiveness() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggressiveness
}

// GetCooperationLevel returns the current cooperation level, [0,1].
func (s *State) GetCooperationLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CooperationLevel
}

// SetAggressiveness sets the aggressiveness level, clamped to [0,1].
func (s *State) SetAggressiveness(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aggressiveness = clamp01(value)
}

// SetCooperationLevel sets the cooperation level, clamped to [0,1].
func (s *State) SetCooperationLevel(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CooperationLevel = clamp01(value)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetPerformanceStats returns the running average utility, SLO violation
// rate, and throttling rate.
func (s *State) GetPerformanceStats() (avgUtility, sloViolationRate, throttlingRate float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	avgUtility = s.AvgUtility
	if s.TotalDecisions > 0 {
		sloViolationRate = float64(s.SLOViolations) / float64(s.TotalDecisions)
		throttlingRate = float64(s.ThrottlingEvents) / float64(s.TotalDecisions)
	}
	return
}
