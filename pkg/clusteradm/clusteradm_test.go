package clusteradm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	env  []string
	name string
	args []string
}

// fakeRunner scripts command outputs and records every invocation
type fakeRunner struct {
	output []byte
	err    error
	calls  []recordedCall
}

func (f *fakeRunner) Run(extraEnv []string, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{env: extraEnv, name: name, args: args})
	return f.output, f.err
}

func TestGetJoinToken(t *testing.T) {
	runner := &fakeRunner{output: []byte(
		"token=abc.def\n" +
			"please log on spoke and run:\n" +
			"clusteradm join --hub-token abc.def --hub-apiserver https://hub:6443 --cluster-name <cluster_name>\n",
	)}
	cli := NewWithRunner(runner, zap.NewNop())

	token, err := cli.GetJoinToken("its1")
	require.NoError(t, err)
	assert.Equal(t, "clusteradm join --hub-token abc.def --hub-apiserver https://hub:6443 --cluster-name <cluster_name>", token)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "clusteradm", runner.calls[0].name)
	assert.Equal(t, []string{"--context", "its1", "get", "token"}, runner.calls[0].args)
}

func TestGetJoinTokenMissingCommand(t *testing.T) {
	runner := &fakeRunner{output: []byte("token=abc.def\n")}
	cli := NewWithRunner(runner, zap.NewNop())

	_, err := cli.GetJoinToken("its1")
	assert.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestGetJoinTokenCommandFailure(t *testing.T) {
	runner := &fakeRunner{output: []byte("connection refused"), err: errors.New("exit status 1")}
	cli := NewWithRunner(runner, zap.NewNop())

	_, err := cli.GetJoinToken("its1")
	assert.ErrorContains(t, err, "connection refused")
}

func TestJoinSubstitutesClusterName(t *testing.T) {
	runner := &fakeRunner{output: []byte("joined")}
	cli := NewWithRunner(runner, zap.NewNop())

	template := "clusteradm join --hub-token abc.def --cluster-name " + ClusterNamePlaceholder
	err := cli.Join("/tmp/kubeconfig-cluster1", "cluster1", template)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "clusteradm", call.name)
	assert.Equal(t, []string{
		"join", "--hub-token", "abc.def", "--cluster-name", "cluster1",
		"--context", "cluster1", "--singleton", "--force-internal-endpoint-lookup",
	}, call.args)
	assert.Contains(t, call.env, "KUBECONFIG=/tmp/kubeconfig-cluster1")
}

func TestJoinEmptyTemplate(t *testing.T) {
	cli := NewWithRunner(&fakeRunner{}, zap.NewNop())
	assert.Error(t, cli.Join("/tmp/kc", "cluster1", "   "))
}

func TestAcceptCluster(t *testing.T) {
	runner := &fakeRunner{output: []byte("accepted")}
	cli := NewWithRunner(runner, zap.NewNop())

	require.NoError(t, cli.AcceptCluster("its1", "cluster1"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"--context", "its1", "accept", "--clusters", "cluster1"}, runner.calls[0].args)
}

func TestAcceptClusterAutoApproval(t *testing.T) {
	runner := &fakeRunner{
		output: []byte("error: ManagedClusterAutoApproval feature is enabled"),
		err:    errors.New("exit status 1"),
	}
	cli := NewWithRunner(runner, zap.NewNop())

	assert.NoError(t, cli.AcceptCluster("its1", "cluster1"))
}

func TestAcceptClusterFailure(t *testing.T) {
	runner := &fakeRunner{output: []byte("no such cluster"), err: errors.New("exit status 1")}
	cli := NewWithRunner(runner, zap.NewNop())

	assert.Error(t, cli.AcceptCluster("its1", "cluster1"))
}

func TestApproveCertificates(t *testing.T) {
	runner := &fakeRunner{output: []byte("approved")}
	cli := NewWithRunner(runner, zap.NewNop())

	require.NoError(t, cli.ApproveCertificates("its1", []string{"csr-a", "csr-b"}))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "kubectl", runner.calls[0].name)
	assert.Equal(t, []string{"--context", "its1", "certificate", "approve", "csr-a", "csr-b"}, runner.calls[0].args)
}
