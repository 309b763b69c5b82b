package onboarding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	clusterclient "open-cluster-management.io/api/client/cluster/clientset/versioned"
)

// acceptPatch marks a managed cluster as accepted by the hub
const acceptPatch = `{"spec":{"hubAcceptsClient":true}}`

// Waiter polls the hub until the ManagedCluster resource for a joining
// cluster appears, then marks it accepted.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration

	logger *zap.Logger
}

// NewWaiter creates a Waiter with the default polling budget
func NewWaiter(logger *zap.Logger) *Waiter {
	return &Waiter{
		Timeout:  5 * time.Minute,
		Interval: 10 * time.Second,
		logger:   logger,
	}
}

// Await blocks until the named ManagedCluster exists on the hub, patching
// hubAcceptsClient on first sighting. A failed acceptance patch is logged
// but does not fail the wait; acceptance usually already happened during
// trust negotiation. A cluster that never appears is a TimeoutError.
func (w *Waiter) Await(ctx context.Context, clusters clusterclient.Interface, clusterName string) error {
	err := wait.PollUntilContextTimeout(ctx, w.Interval, w.Timeout, true, func(ctx context.Context) (bool, error) {
		_, err := clusters.ClusterV1().ManagedClusters().Get(ctx, clusterName, metav1.GetOptions{})
		if err != nil {
			if !apierrors.IsNotFound(err) {
				w.logger.Debug("managed cluster lookup failed, retrying",
					zap.String("cluster", clusterName),
					zap.Error(err))
			}
			return false, nil
		}

		_, err = clusters.ClusterV1().ManagedClusters().Patch(
			ctx,
			clusterName,
			types.MergePatchType,
			[]byte(acceptPatch),
			metav1.PatchOptions{},
		)
		if err != nil {
			w.logger.Warn("failed to patch hubAcceptsClient",
				zap.String("cluster", clusterName),
				zap.Error(err))
		}

		return true, nil
	})
	if err != nil {
		return &TimeoutError{Err: fmt.Errorf("timed out waiting for managed cluster %q to appear on the hub", clusterName)}
	}
	return nil
}
