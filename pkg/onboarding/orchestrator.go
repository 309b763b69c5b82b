package onboarding

import (
	"context"
	"fmt"
	"os"
	"time"

	"ocm-cluster-manager/pkg/clusteradm"
	"ocm-cluster-manager/pkg/config"
	"ocm-cluster-manager/pkg/k8s"
	"ocm-cluster-manager/pkg/kubeconfig"
	"ocm-cluster-manager/pkg/models"
	"ocm-cluster-manager/pkg/store"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Orchestrator drives the cluster onboarding and detachment workflows.
// Start calls validate synchronously, register the status record, and hand
// the long-running work to a goroutine; callers poll the store for progress.
type Orchestrator struct {
	cfg     *config.Config
	store   *store.Store
	clients k8s.ClientProvider
	cli     clusteradm.Interface
	logger  *zap.Logger

	Negotiator *Negotiator
	Waiter     *Waiter

	// ValidateConnectivity probes a kubeconfig before any hub-side work;
	// swapped out in tests.
	ValidateConnectivity func(ctx context.Context, kubeconfigData []byte) error
	ValidateTimeout      time.Duration
}

// New creates an Orchestrator with the default workflow tunables
func New(cfg *config.Config, st *store.Store, clients k8s.ClientProvider, cli clusteradm.Interface, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:                  cfg,
		store:                st,
		clients:              clients,
		cli:                  cli,
		logger:               logger,
		Negotiator:           NewNegotiator(cli, cfg.Hub.Context, logger),
		Waiter:               NewWaiter(logger),
		ValidateConnectivity: k8s.ValidateConnectivity,
		ValidateTimeout:      30 * time.Second,
	}
}

// StartOnboarding registers a Pending record for the cluster and launches
// the onboarding workflow in the background. A cluster that is already
// tracked fails with store.ErrConflict and the existing record.
func (o *Orchestrator) StartOnboarding(kubeconfigData []byte, clusterName string) (models.ClusterRecord, error) {
	rec, err := o.store.Create(clusterName, models.StatusPending, "Onboarding initiated")
	if err != nil {
		return rec, err
	}

	o.logger.Info("onboarding started", zap.String("cluster", clusterName))
	go o.runOnboarding(kubeconfigData, clusterName)

	return rec, nil
}

// StartDetach marks a tracked cluster as detaching and launches the
// detachment workflow in the background. The prior record is returned so
// callers can report what state the cluster was in.
func (o *Orchestrator) StartDetach(clusterName string, force bool) (models.ClusterRecord, error) {
	prior, exists := o.store.Get(clusterName)
	if !exists {
		return models.ClusterRecord{}, ErrNotTracked
	}

	o.store.SetStatus(clusterName, models.StatusDetaching, "Detachment initiated")
	o.logger.Info("detachment started",
		zap.String("cluster", clusterName),
		zap.Bool("force", force))
	go o.runDetach(clusterName, force)

	return prior, nil
}

func (o *Orchestrator) runOnboarding(kubeconfigData []byte, clusterName string) {
	if err := o.onboard(context.Background(), kubeconfigData, clusterName); err != nil {
		o.logger.Error("onboarding failed",
			zap.String("cluster", clusterName),
			zap.Error(err))
		o.store.SetStatus(clusterName, models.StatusFailed, err.Error())
		return
	}

	o.logger.Info("onboarding completed", zap.String("cluster", clusterName))
	o.store.SetStatus(clusterName, models.StatusReady, "Cluster successfully onboarded")
}

// onboard walks the cluster through the onboarding states. The status is
// written before each step so pollers see where the workflow is, not where
// it has been.
func (o *Orchestrator) onboard(ctx context.Context, kubeconfigData []byte, clusterName string) error {
	o.store.SetStatus(clusterName, models.StatusValidating, "Validating cluster connectivity")
	vctx, cancel := context.WithTimeout(ctx, o.ValidateTimeout)
	err := o.ValidateConnectivity(vctx, kubeconfigData)
	cancel()
	if err != nil {
		return &ConnectivityError{Err: fmt.Errorf("cluster validation failed: %w", err)}
	}

	o.store.SetStatus(clusterName, models.StatusConnecting, "Connecting to hub context "+o.cfg.Hub.Context)
	hub, err := o.clients.ForContext(o.cfg.Hub.Context)
	if err != nil {
		return &ConnectivityError{Err: fmt.Errorf("failed to connect to hub: %w", err)}
	}

	o.store.SetStatus(clusterName, models.StatusPreparing, "Preparing cluster credentials")
	savedPath, err := kubeconfig.Save(o.cfg.DataDir, clusterName, kubeconfigData)
	if err != nil {
		return err
	}
	o.store.SetKubeconfigPath(clusterName, savedPath)

	tempPath, err := kubeconfig.WriteTemp(kubeconfigData, clusterName)
	if err != nil {
		return err
	}
	defer os.Remove(tempPath)

	o.store.SetStatus(clusterName, models.StatusRetrieving, "Retrieving join token from the hub")
	token, err := o.cli.GetJoinToken(o.cfg.Hub.Context)
	if err != nil {
		return fmt.Errorf("failed to get join token: %w", err)
	}

	o.store.SetStatus(clusterName, models.StatusJoining, "Joining cluster to the hub")
	if err := o.cli.Join(tempPath, clusterName, token); err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}

	o.store.SetStatus(clusterName, models.StatusApproving, "Approving certificate signing requests")
	if err := o.Negotiator.Approve(ctx, hub.Kube, clusterName); err != nil {
		return err
	}

	o.store.SetStatus(clusterName, models.StatusCreating, "Waiting for the managed cluster to register")
	if err := o.Waiter.Await(ctx, hub.Cluster, clusterName); err != nil {
		return err
	}

	// Labels and the health check are best effort; the cluster is joined
	// and accepted by this point.
	o.store.SetStatus(clusterName, models.StatusFinalizing, "Applying cluster labels")
	if err := ApplyLabels(ctx, hub.Cluster, clusterName, o.onboardLabels(clusterName)); err != nil {
		o.logger.Warn("failed to apply labels",
			zap.String("cluster", clusterName),
			zap.Error(err))
	}

	o.store.SetStatus(clusterName, models.StatusVerifying, "Verifying cluster health")
	if err := VerifyHealth(ctx, hub.Cluster, clusterName); err != nil {
		o.logger.Warn("cluster health not confirmed",
			zap.String("cluster", clusterName),
			zap.Error(err))
	}

	return nil
}

// onboardLabels builds the label set applied after joining: the configured
// defaults plus the cluster's own name label.
func (o *Orchestrator) onboardLabels(clusterName string) map[string]string {
	labels := make(map[string]string, len(o.cfg.Onboard.Labels)+1)
	for key, value := range o.cfg.Onboard.Labels {
		labels[key] = value
	}
	labels["name"] = clusterName
	return labels
}

func (o *Orchestrator) runDetach(clusterName string, force bool) {
	if err := o.detach(context.Background(), clusterName, force); err != nil {
		o.logger.Error("detachment failed",
			zap.String("cluster", clusterName),
			zap.Error(err))
		o.store.SetStatus(clusterName, models.StatusDetachFailed, err.Error())
		return
	}

	o.logger.Info("detachment completed", zap.String("cluster", clusterName))
	o.store.Delete(clusterName)
}

// detach removes the cluster from the hub and cleans up local state. With
// force set, hub-side failures are logged and skipped so a cluster can be
// dropped even when the hub is unreachable.
func (o *Orchestrator) detach(ctx context.Context, clusterName string, force bool) error {
	hub, err := o.clients.ForContext(o.cfg.Hub.Context)
	if err != nil {
		if !force {
			return &ConnectivityError{Err: fmt.Errorf("failed to connect to hub: %w", err)}
		}
		o.logger.Warn("hub unreachable, continuing forced detachment",
			zap.String("cluster", clusterName),
			zap.Error(err))
		hub = nil
	}

	if hub != nil {
		o.store.SetStatus(clusterName, models.StatusRemoving, "Removing managed cluster from the hub")
		err := hub.Cluster.ClusterV1().ManagedClusters().Delete(ctx, clusterName, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			if !force {
				return fmt.Errorf("failed to remove managed cluster: %w", err)
			}
			o.logger.Warn("failed to remove managed cluster, continuing forced detachment",
				zap.String("cluster", clusterName),
				zap.Error(err))
		}
	}

	o.store.SetStatus(clusterName, models.StatusCleaning, "Cleaning up local resources")
	savedPath := kubeconfig.SavedPath(o.cfg.DataDir, clusterName)
	if err := os.Remove(savedPath); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("failed to remove kubeconfig copy",
			zap.String("cluster", clusterName),
			zap.String("path", savedPath),
			zap.Error(err))
	}

	return nil
}
