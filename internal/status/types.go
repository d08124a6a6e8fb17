package status

import "time"

// PushPhase represents the outcome of the last push attempt
type PushPhase string

const (
	// PushPhaseComplete means the last sync sequence pushed successfully
	PushPhaseComplete PushPhase = "Complete"

	// PushPhaseFailed means the last push failed and the local clone may be
	// ahead of the remote
	PushPhaseFailed PushPhase = "Failed"

	// PushPhaseNone means no sync sequence has run since activation
	PushPhaseNone PushPhase = "None"
)

// PushStatus records the outcome of the most recent sync sequence for the
// active profile. It feeds health reporting and survives restarts through
// the file persistence in this package.
type PushStatus struct {
	// Phase is the outcome of the last push attempt
	Phase PushPhase `json:"phase"`

	// Message provides additional information about the outcome
	Message string `json:"message,omitempty"`

	// CommitHash is the local commit the last sequence produced. On a push
	// failure this is the commit the operator needs to reconcile manually.
	CommitHash string `json:"commitHash,omitempty"`

	// Time is when the last sync sequence settled
	Time *time.Time `json:"time,omitempty"`
}
