package models

import "testing"

func TestRepoStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    RepoStatus
		to      RepoStatus
		allowed bool
	}{
		{"pending starts cloning", RepoStatusPending, RepoStatusCloning, true},
		{"cloning advances to walking", RepoStatusCloning, RepoStatusWalking, true},
		{"walking advances to extracting", RepoStatusWalking, RepoStatusExtracting, true},
		{"extracting advances to embedding", RepoStatusExtracting, RepoStatusEmbedding, true},
		{"embedding advances to ownership", RepoStatusEmbedding, RepoStatusComputingOwnership, true},
		{"ownership completes", RepoStatusComputingOwnership, RepoStatusCompleted, true},
		{"cloning can fail", RepoStatusCloning, RepoStatusFailed, true},
		{"embedding can fail", RepoStatusEmbedding, RepoStatusFailed, true},
		{"completed can restart", RepoStatusCompleted, RepoStatusCloning, true},
		{"failed can restart", RepoStatusFailed, RepoStatusCloning, true},
		{"failed resets to pending", RepoStatusFailed, RepoStatusPending, true},
		{"completed starts updating", RepoStatusCompleted, RepoStatusUpdating, true},
		{"updating completes", RepoStatusUpdating, RepoStatusCompleted, true},
		{"updating can fail", RepoStatusUpdating, RepoStatusFailed, true},
		{"updating resets to pending", RepoStatusUpdating, RepoStatusPending, true},
		{"updating blocks a full run", RepoStatusUpdating, RepoStatusCloning, false},
		{"cloning blocks updating", RepoStatusCloning, RepoStatusUpdating, false},
		{"no skipping phases", RepoStatusCloning, RepoStatusEmbedding, false},
		{"no going backwards", RepoStatusEmbedding, RepoStatusWalking, false},
		{"completed cannot fail", RepoStatusCompleted, RepoStatusFailed, false},
		{"pending cannot complete", RepoStatusPending, RepoStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestRepoStatusTerminal(t *testing.T) {
	terminal := []RepoStatus{RepoStatusPending, RepoStatusCompleted, RepoStatusFailed}
	active := []RepoStatus{RepoStatusCloning, RepoStatusWalking, RepoStatusExtracting, RepoStatusEmbedding, RepoStatusComputingOwnership, RepoStatusUpdating}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestQueueStatusTransitions(t *testing.T) {
	tests := []struct {
		from    QueueStatus
		to      QueueStatus
		allowed bool
	}{
		{QueueStatusPending, QueueStatusProcessing, true},
		{QueueStatusProcessing, QueueStatusDone, true},
		{QueueStatusProcessing, QueueStatusFailed, true},
		{QueueStatusProcessing, QueueStatusPending, true},
		{QueueStatusFailed, QueueStatusPending, true},
		{QueueStatusDone, QueueStatusPending, false},
		{QueueStatusPending, QueueStatusDone, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}
