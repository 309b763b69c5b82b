package kubeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ocm-cluster-manager/pkg/models"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

var (
	// ErrNotFound is returned when the named cluster or context is absent
	// from the operator's kubeconfig.
	ErrNotFound = errors.New("cluster not found in local kubeconfig")

	// ErrInvalidFormat is returned when a kubeconfig document does not parse.
	ErrInvalidFormat = errors.New("invalid kubeconfig format")
)

// DefaultAuthInfoName is used when a sliced kubeconfig has no credentials
// associated with the selected cluster.
const DefaultAuthInfoName = "default-user"

// Resolver turns a cluster or context name into a minimal standalone
// kubeconfig sliced out of the operator's ambient kubeconfig.
type Resolver struct {
	path string
}

// NewResolver creates a Resolver reading the ambient kubeconfig, honoring
// the KUBECONFIG environment variable.
func NewResolver() *Resolver {
	return &Resolver{path: Path()}
}

// NewResolverWithPath creates a Resolver reading a specific kubeconfig file
func NewResolverWithPath(path string) *Resolver {
	return &Resolver{path: path}
}

// Path returns the location of the operator's kubeconfig file
func Path() string {
	if path := os.Getenv("KUBECONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}

// FromLocal extracts a single-cluster kubeconfig for the named cluster.
// The name is resolved first as a cluster name, then via a context that
// references a cluster of that name, and finally as a context name itself.
func (r *Resolver) FromLocal(name string) ([]byte, error) {
	config, err := clientcmd.LoadFromFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	cluster, exists := config.Clusters[name]
	if !exists {
		for contextName, ctx := range config.Contexts {
			if ctx.Cluster == name {
				return extractContext(config, contextName)
			}
		}
		if _, ok := config.Contexts[name]; ok {
			return extractContext(config, name)
		}
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	// Find a context that uses this cluster
	var contextName string
	var authInfoName string
	for ctxName, ctx := range config.Contexts {
		if ctx.Cluster == name {
			contextName = ctxName
			authInfoName = ctx.AuthInfo
			break
		}
	}

	if contextName == "" {
		// No context references this cluster, synthesize a minimal one
		authInfoName = DefaultAuthInfoName
		contextName = name + "-ctx"
	}

	newConfig := clientcmdapi.Config{
		APIVersion: "v1",
		Kind:       "Config",
		Clusters: map[string]*clientcmdapi.Cluster{
			name: cluster,
		},
		Contexts: map[string]*clientcmdapi.Context{
			contextName: {
				Cluster:  name,
				AuthInfo: authInfoName,
			},
		},
		AuthInfos:      map[string]*clientcmdapi.AuthInfo{},
		CurrentContext: contextName,
	}

	if authInfo, ok := config.AuthInfos[authInfoName]; ok {
		newConfig.AuthInfos[authInfoName] = authInfo
	}

	return clientcmd.Write(newConfig)
}

// Contexts lists all contexts in the operator's kubeconfig
func (r *Resolver) Contexts() ([]models.ContextInfo, error) {
	config, err := clientcmd.LoadFromFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	contexts := make([]models.ContextInfo, 0, len(config.Contexts))
	for name, ctx := range config.Contexts {
		contexts = append(contexts, models.ContextInfo{
			Name:    name,
			Cluster: ctx.Cluster,
		})
	}
	return contexts, nil
}

// extractContext slices a single context with its cluster and credentials
// into a standalone kubeconfig document.
func extractContext(config *clientcmdapi.Config, contextName string) ([]byte, error) {
	context, exists := config.Contexts[contextName]
	if !exists {
		return nil, fmt.Errorf("%w: context %q", ErrNotFound, contextName)
	}

	cluster, exists := config.Clusters[context.Cluster]
	if !exists {
		return nil, fmt.Errorf("%w: cluster %q referenced by context %q", ErrNotFound, context.Cluster, contextName)
	}

	authInfo, exists := config.AuthInfos[context.AuthInfo]
	if !exists {
		return nil, fmt.Errorf("%w: user %q referenced by context %q", ErrNotFound, context.AuthInfo, contextName)
	}

	newConfig := clientcmdapi.Config{
		APIVersion: "v1",
		Kind:       "Config",
		Clusters: map[string]*clientcmdapi.Cluster{
			context.Cluster: cluster,
		},
		Contexts: map[string]*clientcmdapi.Context{
			contextName: context,
		},
		AuthInfos: map[string]*clientcmdapi.AuthInfo{
			context.AuthInfo: authInfo,
		},
		CurrentContext: contextName,
	}

	return clientcmd.Write(newConfig)
}

// Validate checks that a kubeconfig document parses
func Validate(data []byte) error {
	if _, err := clientcmd.Load(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return nil
}

// WriteTemp writes a kubeconfig to a uniquely named temporary file for the
// duration of a join attempt. Server endpoints pointing at localhost are
// rewritten to the cluster name so the join command resolves the cluster
// from inside the network.
func WriteTemp(data []byte, clusterName string) (string, error) {
	config, err := clientcmd.Load(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	adjustServerEndpoints(config)

	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("kubeconfig-%s-%d", clusterName, time.Now().UnixNano()))
	if err := clientcmd.WriteToFile(*config, tempFile); err != nil {
		return "", fmt.Errorf("failed to write temporary kubeconfig: %w", err)
	}

	return tempFile, nil
}

// SavedPath returns the deterministic location of a cluster's persisted
// kubeconfig copy under the data directory.
func SavedPath(dataDir, clusterName string) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s-kubeconfig", clusterName))
}

// Save persists a kubeconfig copy for an onboarded cluster, creating the
// data directory if absent.
func Save(dataDir, clusterName string, data []byte) (string, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := SavedPath(dataDir, clusterName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to save kubeconfig: %w", err)
	}
	return path, nil
}

// adjustServerEndpoints replaces localhost endpoints with the cluster name
func adjustServerEndpoints(config *clientcmdapi.Config) {
	for name, cluster := range config.Clusters {
		if strings.Contains(cluster.Server, "localhost") {
			cluster.Server = strings.Replace(cluster.Server, "localhost", name, 1)
		}
	}
}
