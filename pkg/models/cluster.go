package models

import "time"

// Status is the lifecycle state of a cluster workflow
type Status string

// Onboarding states, in order of progression
const (
	StatusPending    Status = "Pending"
	StatusValidating Status = "Validating"
	StatusConnecting Status = "Connecting"
	StatusPreparing  Status = "Preparing"
	StatusRetrieving Status = "Retrieving"
	StatusJoining    Status = "Joining"
	StatusApproving  Status = "Approving"
	StatusCreating   Status = "Creating"
	StatusFinalizing Status = "Finalizing"
	StatusVerifying  Status = "Verifying"
	StatusReady      Status = "Ready"
	StatusFailed     Status = "Failed"
)

// Detachment states
const (
	StatusDetaching    Status = "Detaching"
	StatusRemoving     Status = "Removing"
	StatusCleaning     Status = "Cleaning"
	StatusDetachFailed Status = "DetachFailed"
)

// ClusterRecord tracks the workflow state of a single cluster, keyed by name
type ClusterRecord struct {
	ID             string    `json:"id"`
	ClusterName    string    `json:"clusterName"`
	Status         Status    `json:"status"`
	Message        string    `json:"message,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated"`
	KubeconfigPath string    `json:"kubeconfigPath,omitempty"`
}

// StatusSummary counts tracked records by status bucket
type StatusSummary struct {
	Total     int `json:"total"`
	Ready     int `json:"ready"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Detaching int `json:"detaching"`
}

// Bucket maps a status to its summary bucket. Every in-flight onboarding
// state counts as pending; both failure states count as failed.
func (s Status) Bucket() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed, StatusDetachFailed:
		return "failed"
	case StatusDetaching, StatusRemoving, StatusCleaning:
		return "detaching"
	default:
		return "pending"
	}
}

// ContextInfo holds basic info for a kubeconfig context
type ContextInfo struct {
	Name    string `json:"name"`
	Cluster string `json:"cluster"`
}
