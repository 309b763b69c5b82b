package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	certificatesv1 "k8s.io/api/certificates/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kubefake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

// fakeCLI scripts the registration CLI surface and records what was called
type fakeCLI struct {
	mu sync.Mutex

	token      string
	tokenErr   error
	joinErr    error
	acceptErr  error
	approveErr error

	joined   []string
	accepted []string
	approved [][]string
}

func (f *fakeCLI) GetJoinToken(hubContext string) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeCLI) Join(kubeconfigPath, clusterName, tokenTemplate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, clusterName)
	return f.joinErr
}

func (f *fakeCLI) AcceptCluster(hubContext, clusterName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, clusterName)
	return f.acceptErr
}

func (f *fakeCLI) ApproveCertificates(hubContext string, csrNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, csrNames)
	return f.approveErr
}

func newTestNegotiator(cli *fakeCLI) *Negotiator {
	n := NewNegotiator(cli, "its1", zap.NewNop())
	n.Attempts = 2
	n.BaseDelay = time.Millisecond
	return n
}

func pendingCSR(name string) *certificatesv1.CertificateSigningRequest {
	return &certificatesv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
}

func approvedCSR(name string) *certificatesv1.CertificateSigningRequest {
	csr := pendingCSR(name)
	csr.Status.Conditions = []certificatesv1.CertificateSigningRequestCondition{
		{Type: certificatesv1.CertificateApproved, Status: "True"},
	}
	return csr
}

func TestApproveViaAccept(t *testing.T) {
	cli := &fakeCLI{}
	n := newTestNegotiator(cli)
	kube := kubefake.NewSimpleClientset()

	require.NoError(t, n.Approve(context.Background(), kube, "cluster1"))
	assert.Equal(t, []string{"cluster1"}, cli.accepted)
	assert.Empty(t, cli.approved)
}

func TestApproveNoPendingCSRsIsSuccess(t *testing.T) {
	cli := &fakeCLI{acceptErr: errors.New("accept failed")}
	n := newTestNegotiator(cli)
	// Another cluster's CSR and an already approved one must not count
	kube := kubefake.NewSimpleClientset(
		pendingCSR("other-cluster-abc"),
		approvedCSR("cluster1-xyz"),
	)

	require.NoError(t, n.Approve(context.Background(), kube, "cluster1"))
	assert.Empty(t, cli.approved)
}

func TestApproveViaCLI(t *testing.T) {
	cli := &fakeCLI{acceptErr: errors.New("accept failed")}
	n := newTestNegotiator(cli)
	kube := kubefake.NewSimpleClientset(pendingCSR("cluster1-abc"), pendingCSR("cluster1-def"))

	require.NoError(t, n.Approve(context.Background(), kube, "cluster1"))
	require.Len(t, cli.approved, 1)
	assert.ElementsMatch(t, []string{"cluster1-abc", "cluster1-def"}, cli.approved[0])
}

func TestApproveViaAPIPatch(t *testing.T) {
	cli := &fakeCLI{
		acceptErr:  errors.New("accept failed"),
		approveErr: errors.New("kubectl failed"),
	}
	n := newTestNegotiator(cli)
	kube := kubefake.NewSimpleClientset(pendingCSR("cluster1-abc"))

	require.NoError(t, n.Approve(context.Background(), kube, "cluster1"))

	csr, err := kube.CertificatesV1().CertificateSigningRequests().Get(context.Background(), "cluster1-abc", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, csr.Status.Conditions)
	assert.Equal(t, certificatesv1.CertificateApproved, csr.Status.Conditions[0].Type)
}

func TestApproveExhaustedPatchFails(t *testing.T) {
	cli := &fakeCLI{
		acceptErr:  errors.New("accept failed"),
		approveErr: errors.New("kubectl failed"),
	}
	n := newTestNegotiator(cli)
	kube := kubefake.NewSimpleClientset(pendingCSR("cluster1-abc"))
	kube.PrependReactor("patch", "certificatesigningrequests", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("patch denied")
	})

	err := n.Approve(context.Background(), kube, "cluster1")
	require.Error(t, err)

	var trustErr *TrustNegotiationError
	assert.ErrorAs(t, err, &trustErr)
}

func TestApproveRetriesListFailures(t *testing.T) {
	cli := &fakeCLI{acceptErr: errors.New("accept failed")}
	n := newTestNegotiator(cli)
	kube := kubefake.NewSimpleClientset(pendingCSR("cluster1-abc"))

	// First list fails, the retry succeeds
	failed := false
	kube.PrependReactor("list", "certificatesigningrequests", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if !failed {
			failed = true
			return true, nil, errors.New("transient")
		}
		return false, nil, nil
	})

	require.NoError(t, n.Approve(context.Background(), kube, "cluster1"))
	require.Len(t, cli.approved, 1)
}
