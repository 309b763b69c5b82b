package k8s

import (
	"context"
	"fmt"
	"sync"

	"ocm-cluster-manager/pkg/kubeconfig"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clusterclient "open-cluster-management.io/api/client/cluster/clientset/versioned"
)

// Clients bundles the typed API clients for one hub context
type Clients struct {
	Kube    kubernetes.Interface
	Cluster clusterclient.Interface
	Rest    *rest.Config
}

// ClientProvider returns typed clients for a hub context by name
type ClientProvider interface {
	ForContext(contextName string) (*Clients, error)
}

// Manager builds and caches hub clients keyed by kubeconfig context
type Manager struct {
	mu             sync.RWMutex
	kubeconfigPath string
	clients        map[string]*Clients
}

// NewManager creates a new hub client manager reading the operator's
// ambient kubeconfig.
func NewManager() *Manager {
	return &Manager{
		kubeconfigPath: kubeconfig.Path(),
		clients:        make(map[string]*Clients),
	}
}

// ForContext returns clients for the named kubeconfig context
func (m *Manager) ForContext(contextName string) (*Clients, error) {
	m.mu.RLock()
	clients, exists := m.clients[contextName]
	m.mu.RUnlock()

	if exists {
		return clients, nil
	}

	clients, err := m.createClients(contextName)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.clients[contextName] = clients
	m.mu.Unlock()

	return clients, nil
}

// Remove drops the cached clients for a context
func (m *Manager) Remove(contextName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, contextName)
}

// createClients builds typed clients for a kubeconfig context
func (m *Manager) createClients(contextName string) (*Clients, error) {
	config, err := clientcmd.LoadFromFile(m.kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	clientConfig := clientcmd.NewNonInteractiveClientConfig(
		*config,
		contextName,
		&clientcmd.ConfigOverrides{},
		nil,
	)

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build REST config for context %q: %w", contextName, err)
	}

	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	ocmClient, err := clusterclient.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}

	return &Clients{
		Kube:    kubeClient,
		Cluster: ocmClient,
		Rest:    restConfig,
	}, nil
}

// ValidateConnectivity checks that a kubeconfig document can reach its
// cluster by listing nodes.
func ValidateConnectivity(ctx context.Context, kubeconfigData []byte) error {
	config, err := clientcmd.RESTConfigFromKubeConfig(kubeconfigData)
	if err != nil {
		return fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	if _, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("failed to connect to the cluster: %w", err)
	}

	return nil
}
