package clusteradm

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ClusterNamePlaceholder is the token the hub embeds in the join command
// template; it must be substituted with the real cluster name before use.
const ClusterNamePlaceholder = "<cluster_name>"

// autoApprovalMarker appears in clusteradm output when the hub approves
// joining clusters automatically, making manual acceptance unnecessary.
const autoApprovalMarker = "ManagedClusterAutoApproval"

// ErrTokenUnavailable is returned when no join command can be obtained
// from the hub.
var ErrTokenUnavailable = errors.New("join command not found in clusteradm output")

// Interface is the narrow surface the onboarding workflow needs from the
// external registration CLIs, so the approval fallback ladder can be tested
// with fakes.
type Interface interface {
	GetJoinToken(hubContext string) (string, error)
	Join(kubeconfigPath, clusterName, tokenTemplate string) error
	AcceptCluster(hubContext, clusterName string) error
	ApproveCertificates(hubContext string, csrNames []string) error
}

// Runner executes an external command and returns its combined output.
// Extra environment entries are appended to the current environment.
type Runner interface {
	Run(extraEnv []string, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(extraEnv []string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	return cmd.CombinedOutput()
}

// CLI invokes clusteradm and kubectl as subprocesses
type CLI struct {
	runner Runner
	logger *zap.Logger
}

// New creates a CLI executing real subprocesses
func New(logger *zap.Logger) *CLI {
	return &CLI{runner: execRunner{}, logger: logger}
}

// NewWithRunner creates a CLI with a custom runner
func NewWithRunner(runner Runner, logger *zap.Logger) *CLI {
	return &CLI{runner: runner, logger: logger}
}

// GetJoinToken retrieves the join command template from the hub. The
// template still carries the cluster name placeholder.
func (c *CLI) GetJoinToken(hubContext string) (string, error) {
	output, err := c.runner.Run(nil, "clusteradm", "--context", hubContext, "get", "token")
	if err != nil {
		return "", fmt.Errorf("failed to get token: %s, %w", string(output), err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "clusteradm join") {
			return line, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrTokenUnavailable, string(output))
}

// Join runs the join command template against the target cluster. The
// cluster's kubeconfig is supplied via the environment so the command
// registers the right cluster with the hub.
func (c *CLI) Join(kubeconfigPath, clusterName, tokenTemplate string) error {
	joinCmd := strings.Replace(tokenTemplate, ClusterNamePlaceholder, clusterName, 1)

	cmdParts := strings.Fields(joinCmd)
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty join command template")
	}
	cmdParts = append(cmdParts, "--context", clusterName, "--singleton", "--force-internal-endpoint-lookup")

	env := []string{fmt.Sprintf("KUBECONFIG=%s", kubeconfigPath)}
	output, err := c.runner.Run(env, cmdParts[0], cmdParts[1:]...)
	if err != nil {
		return fmt.Errorf("join command failed: %s, %w", string(output), err)
	}

	c.logger.Debug("join command completed",
		zap.String("cluster", clusterName),
		zap.String("output", string(output)))
	return nil
}

// AcceptCluster accepts a joining cluster at the hub. A hub with automatic
// approval enabled reports that in the output; that counts as success.
func (c *CLI) AcceptCluster(hubContext, clusterName string) error {
	output, err := c.runner.Run(nil, "clusteradm", "--context", hubContext, "accept", "--clusters", clusterName)
	if err == nil || strings.Contains(string(output), autoApprovalMarker) {
		c.logger.Debug("cluster accepted via clusteradm",
			zap.String("cluster", clusterName),
			zap.String("output", string(output)))
		return nil
	}
	return fmt.Errorf("clusteradm accept failed: %s, %w", string(output), err)
}

// ApproveCertificates approves the named CSRs at the hub in one call
func (c *CLI) ApproveCertificates(hubContext string, csrNames []string) error {
	args := append([]string{"--context", hubContext, "certificate", "approve"}, csrNames...)
	output, err := c.runner.Run(nil, "kubectl", args...)
	if err != nil {
		return fmt.Errorf("kubectl certificate approve failed: %s, %w", string(output), err)
	}
	return nil
}
