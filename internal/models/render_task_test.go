package models

import "testing"

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusRendering, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusCompleted, true},
		{TaskStatusPending, TaskStatusPending, false},
		{TaskStatusRendering, TaskStatusCompleted, true},
		{TaskStatusRendering, TaskStatusFailed, true},
		{TaskStatusRendering, TaskStatusPending, false},
		{TaskStatusRendering, TaskStatusRendering, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusCompleted, TaskStatusRendering, false},
		{TaskStatusFailed, TaskStatusCompleted, false},
		{TaskStatusFailed, TaskStatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	if TaskStatusPending.IsTerminal() || TaskStatusRendering.IsTerminal() {
		t.Error("pending and rendering are not terminal")
	}
	if !TaskStatusCompleted.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("completed and failed are terminal")
	}
}
