package onboarding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ocm-cluster-manager/pkg/clusteradm"

	"go.uber.org/zap"
	certificatesv1 "k8s.io/api/certificates/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// csrApprovalPatch sets the Approved condition on a CSR's status
const csrApprovalPatch = `{"status":{"conditions":[{"type":"Approved","status":"True","reason":"ApprovedByAPI","message":"Approved by cluster manager"}]}}`

// Negotiator approves the certificate signing requests a joining cluster
// files at the hub. No single approval mechanism is reliably available in
// every environment, so three are attempted in order: clusteradm
// acceptance, CLI certificate approval, and a direct API patch.
type Negotiator struct {
	CLI        clusteradm.Interface
	HubContext string

	// Attempts bounds the manual retry loop; BaseDelay scales the wait
	// before each attempt (attempt index times BaseDelay).
	Attempts  int
	BaseDelay time.Duration

	logger *zap.Logger
}

// NewNegotiator creates a Negotiator with the default retry budget
func NewNegotiator(cli clusteradm.Interface, hubContext string, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		CLI:        cli,
		HubContext: hubContext,
		Attempts:   3,
		BaseDelay:  10 * time.Second,
		logger:     logger,
	}
}

// Approve negotiates trust for the named cluster. Transient listing or CLI
// failures inside the retry loop are logged and retried; only an exhausted
// API patch path fails the negotiation. Finding no pending CSRs after all
// attempts is treated as success, since they may have been approved already.
func (n *Negotiator) Approve(ctx context.Context, kube kubernetes.Interface, clusterName string) error {
	// Tier 1: clusteradm acceptance, which approves CSRs as a side effect
	if err := n.CLI.AcceptCluster(n.HubContext, clusterName); err == nil {
		return nil
	} else {
		n.logger.Warn("clusteradm accept failed, falling back to manual CSR approval",
			zap.String("cluster", clusterName),
			zap.Error(err))
	}

	for attempt := 1; attempt <= n.Attempts; attempt++ {
		// CSR creation can lag cluster registration
		time.Sleep(time.Duration(attempt) * n.BaseDelay)

		csrList, err := kube.CertificatesV1().CertificateSigningRequests().List(ctx, metav1.ListOptions{})
		if err != nil {
			n.logger.Warn("failed to list CSRs",
				zap.String("cluster", clusterName),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		var pending []string
		for _, csr := range csrList.Items {
			if strings.Contains(csr.Name, clusterName) && !isApproved(csr) {
				pending = append(pending, csr.Name)
			}
		}

		if len(pending) == 0 {
			if attempt == n.Attempts {
				n.logger.Info("no pending CSRs found after all attempts, proceeding",
					zap.String("cluster", clusterName))
				return nil
			}
			continue
		}

		n.logger.Info("found pending CSRs",
			zap.String("cluster", clusterName),
			zap.Strings("csrs", pending))

		// Tier 2: CLI approval of all pending CSRs in one call
		if err := n.CLI.ApproveCertificates(n.HubContext, pending); err == nil {
			return nil
		} else {
			n.logger.Warn("CLI certificate approval failed, falling back to API patch",
				zap.String("cluster", clusterName),
				zap.Error(err))
		}

		// Tier 3: patch each CSR's approval condition directly
		if err := n.patchApprovals(ctx, kube, pending); err != nil {
			if attempt == n.Attempts {
				return &TrustNegotiationError{Err: err}
			}
			n.logger.Warn("API patch approval failed, retrying",
				zap.String("cluster", clusterName),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		return nil
	}

	return &TrustNegotiationError{Err: fmt.Errorf("failed to approve CSRs for cluster %q after %d attempts", clusterName, n.Attempts)}
}

// patchApprovals sets the Approved condition on each CSR, one at a time
func (n *Negotiator) patchApprovals(ctx context.Context, kube kubernetes.Interface, csrNames []string) error {
	for _, name := range csrNames {
		_, err := kube.CertificatesV1().CertificateSigningRequests().Patch(
			ctx,
			name,
			types.MergePatchType,
			[]byte(csrApprovalPatch),
			metav1.PatchOptions{},
		)
		if err != nil {
			return fmt.Errorf("failed to approve CSR %s: %w", name, err)
		}
		n.logger.Info("approved CSR", zap.String("csr", name))
	}
	return nil
}

// isApproved reports whether a CSR already carries the Approved condition
func isApproved(csr certificatesv1.CertificateSigningRequest) bool {
	for _, condition := range csr.Status.Conditions {
		if condition.Type == certificatesv1.CertificateApproved {
			return true
		}
	}
	return false
}
