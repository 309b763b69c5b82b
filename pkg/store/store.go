package store

import (
	"errors"
	"sync"
	"time"

	"ocm-cluster-manager/pkg/models"

	"github.com/google/uuid"
)

// ErrConflict is returned when a record already exists for a cluster name
var ErrConflict = errors.New("cluster is already tracked")

// Store keeps the workflow status of every tracked cluster in memory.
// Writes take the exclusive lock; listing and lookups take the shared lock
// so pollers never block workflow progress.
type Store struct {
	mu      sync.RWMutex
	records map[string]models.ClusterRecord
}

// New creates a new Store instance
func New() *Store {
	return &Store{
		records: make(map[string]models.ClusterRecord),
	}
}

// Create registers a new record for the cluster name. At most one record
// exists per name; a second create fails with ErrConflict so concurrent
// workflows cannot race on the same cluster.
func (s *Store) Create(clusterName string, status models.Status, message string) (models.ClusterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.records[clusterName]; exists {
		return existing, ErrConflict
	}

	rec := models.ClusterRecord{
		ID:          uuid.New().String(),
		ClusterName: clusterName,
		Status:      status,
		Message:     message,
		LastUpdated: time.Now(),
	}
	s.records[clusterName] = rec
	return rec, nil
}

// Get returns the record for a cluster name
func (s *Store) Get(clusterName string) (models.ClusterRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[clusterName]
	return rec, exists
}

// SetStatus updates the status and message of an existing record and bumps
// its timestamp. Unknown names are ignored; the record may have been force
// deleted by a concurrent detachment.
func (s *Store) SetStatus(clusterName string, status models.Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[clusterName]
	if !exists {
		return
	}
	rec.Status = status
	rec.Message = message
	rec.LastUpdated = time.Now()
	s.records[clusterName] = rec
}

// SetKubeconfigPath records where the cluster's kubeconfig copy was persisted
func (s *Store) SetKubeconfigPath(clusterName, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[clusterName]
	if !exists {
		return
	}
	rec.KubeconfigPath = path
	rec.LastUpdated = time.Now()
	s.records[clusterName] = rec
}

// Delete removes the record for a cluster name
func (s *Store) Delete(clusterName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, clusterName)
}

// List returns a copy of all tracked records
func (s *Store) List() []models.ClusterRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ClusterRecord, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec)
	}
	return result
}

// Summary counts tracked records by status bucket
func (s *Store) Summary() models.StatusSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := models.StatusSummary{Total: len(s.records)}
	for _, rec := range s.records {
		switch rec.Status.Bucket() {
		case "ready":
			summary.Ready++
		case "failed":
			summary.Failed++
		case "detaching":
			summary.Detaching++
		default:
			summary.Pending++
		}
	}
	return summary
}
