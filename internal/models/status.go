package models

// RepoStatus is the processing state of a repository's analysis pipeline.
// Transitions are driven only by the ingestion orchestrator and persisted
// after every step so a crash leaves an inspectable state.
type RepoStatus string

const (
	RepoStatusPending            RepoStatus = "pending"
	RepoStatusCloning            RepoStatus = "cloning"
	RepoStatusWalking            RepoStatus = "walking"
	RepoStatusExtracting         RepoStatus = "extracting"
	RepoStatusEmbedding          RepoStatus = "embedding"
	RepoStatusComputingOwnership RepoStatus = "computing_ownership"
	// Updating is held for the duration of an incremental run so full and
	// incremental runs exclude each other through the same status claim.
	RepoStatusUpdating  RepoStatus = "updating"
	RepoStatusCompleted RepoStatus = "completed"
	RepoStatusFailed    RepoStatus = "failed"
)

// repoTransitions is the allowed transition table. Failed is reachable from
// every non-terminal state; Pending is re-entered when a stale run is reset.
var repoTransitions = map[RepoStatus][]RepoStatus{
	RepoStatusPending:            {RepoStatusCloning, RepoStatusUpdating, RepoStatusFailed},
	RepoStatusCloning:            {RepoStatusWalking, RepoStatusFailed},
	RepoStatusWalking:            {RepoStatusExtracting, RepoStatusFailed},
	RepoStatusExtracting:         {RepoStatusEmbedding, RepoStatusFailed},
	RepoStatusEmbedding:          {RepoStatusComputingOwnership, RepoStatusFailed},
	RepoStatusComputingOwnership: {RepoStatusCompleted, RepoStatusFailed},
	RepoStatusUpdating:           {RepoStatusCompleted, RepoStatusPending, RepoStatusFailed},
	RepoStatusCompleted:          {RepoStatusPending, RepoStatusCloning, RepoStatusUpdating},
	RepoStatusFailed:             {RepoStatusPending, RepoStatusCloning, RepoStatusUpdating},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s RepoStatus) CanTransition(next RepoStatus) bool {
	for _, allowed := range repoTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a resting state: no pipeline run is active.
func (s RepoStatus) Terminal() bool {
	return s == RepoStatusCompleted || s == RepoStatusFailed || s == RepoStatusPending
}

// QueueStatus is the lifecycle state of a webhook queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusFailed     QueueStatus = "failed"
)

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusPending:    {QueueStatusProcessing},
	QueueStatusProcessing: {QueueStatusDone, QueueStatusFailed, QueueStatusPending},
	QueueStatusFailed:     {QueueStatusPending},
	QueueStatusDone:       {},
}

// CanTransition reports whether moving from s to next is a legal transition.
// Processing may fall back to pending when the item is requeued for retry.
func (s QueueStatus) CanTransition(next QueueStatus) bool {
	for _, allowed := range queueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
