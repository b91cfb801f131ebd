package dispatch

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   PriorityInputs
		want int
	}{
		{"baseline", PriorityInputs{}, 0},
		{"narrative only", PriorityInputs{InNarrativeThread: true}, 3},
		{"high complexity", PriorityInputs{Complexity: 0.8}, 2},
		{"mid complexity", PriorityInputs{Complexity: 0.5}, 1},
		{"mid complexity lower bound", PriorityInputs{Complexity: 0.4}, 1},
		{"mid complexity upper bound", PriorityInputs{Complexity: 0.7}, 1},
		{"just above cutoff", PriorityInputs{Complexity: 0.71}, 2},
		{"below mid cutoff", PriorityInputs{Complexity: 0.39}, 0},
		{"narrative and high complexity", PriorityInputs{InNarrativeThread: true, Complexity: 0.9}, 5},
		{"narrative and mid complexity", PriorityInputs{InNarrativeThread: true, Complexity: 0.5}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.in); got != tt.want {
				t.Errorf("Score(%+v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
