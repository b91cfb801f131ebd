package dispatch

// Priority score components. The table is fixed: narrative membership
// dominates, complexity contributes up to two points.
const (
	narrativeBonus       = 3
	highComplexityBonus  = 2
	midComplexityBonus   = 1
	highComplexityCutoff = 0.7
	midComplexityCutoff  = 0.4
)

// Score computes the priority score for a request. It is computed once at
// submit and never recomputed, including across retries.
func Score(in PriorityInputs) int {
	score := 0
	if in.InNarrativeThread {
		score += narrativeBonus
	}
	switch {
	case in.Complexity > highComplexityCutoff:
		score += highComplexityBonus
	case in.Complexity >= midComplexityCutoff:
		score += midComplexityBonus
	}
	return score
}
