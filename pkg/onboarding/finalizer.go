package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	clusterclient "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1 "open-cluster-management.io/api/cluster/v1"
)

// protectedLabelPrefixes guard system labels from mutation through the
// label update endpoint.
var protectedLabelPrefixes = []string{
	"cluster.open-cluster-management.io/",
	"feature.open-cluster-management.io/",
	"kubernetes.io/",
	"k8s.io/",
}

// IsProtectedLabel reports whether a label key belongs to a system namespace
func IsProtectedLabel(key string) bool {
	for _, prefix := range protectedLabelPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// ApplyLabels merge-patches labels onto a managed cluster. An empty value
// removes the label. Protected system labels are rejected before any
// mutation is applied.
func ApplyLabels(ctx context.Context, clusters clusterclient.Interface, clusterName string, labels map[string]string) error {
	var protected []string
	for key := range labels {
		if IsProtectedLabel(key) {
			protected = append(protected, key)
		}
	}
	if len(protected) > 0 {
		return fmt.Errorf("cannot modify protected labels: %s", strings.Join(protected, ", "))
	}

	patchLabels := make(map[string]interface{}, len(labels))
	for key, value := range labels {
		if value == "" {
			// null deletes the key under merge patch semantics
			patchLabels[key] = nil
		} else {
			patchLabels[key] = value
		}
	}

	patch, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"labels": patchLabels,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal label patch: %w", err)
	}

	_, err = clusters.ClusterV1().ManagedClusters().Patch(
		ctx,
		clusterName,
		types.MergePatchType,
		patch,
		metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("failed to patch labels on cluster %q: %w", clusterName, err)
	}
	return nil
}

// VerifyHealth checks that a managed cluster has joined the hub and reports
// itself available.
func VerifyHealth(ctx context.Context, clusters clusterclient.Interface, clusterName string) error {
	mc, err := clusters.ClusterV1().ManagedClusters().Get(ctx, clusterName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get managed cluster %q: %w", clusterName, err)
	}

	if !hasCondition(mc.Status.Conditions, clusterv1.ManagedClusterConditionJoined) {
		return fmt.Errorf("cluster %q has not joined the hub yet", clusterName)
	}
	if !hasCondition(mc.Status.Conditions, clusterv1.ManagedClusterConditionAvailable) {
		return fmt.Errorf("cluster %q is not reporting available yet", clusterName)
	}
	return nil
}

func hasCondition(conditions []metav1.Condition, conditionType string) bool {
	for _, condition := range conditions {
		if condition.Type == conditionType && condition.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}
