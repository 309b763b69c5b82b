package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"ocm-cluster-manager/pkg/config"
	"ocm-cluster-manager/pkg/k8s"
	"ocm-cluster-manager/pkg/kubeconfig"
	"ocm-cluster-manager/pkg/models"
	"ocm-cluster-manager/pkg/onboarding"
	"ocm-cluster-manager/pkg/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Handlers holds the HTTP handlers and their dependencies
type Handlers struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *onboarding.Orchestrator
	resolver     *kubeconfig.Resolver
	clients      k8s.ClientProvider
	logger       *zap.Logger
}

// New creates a new Handlers instance
func New(cfg *config.Config, st *store.Store, orch *onboarding.Orchestrator, resolver *kubeconfig.Resolver, clients k8s.ClientProvider, logger *zap.Logger) *Handlers {
	return &Handlers{
		cfg:          cfg,
		store:        st,
		orchestrator: orch,
		resolver:     resolver,
		clients:      clients,
		logger:       logger,
	}
}

// RegisterRoutes wires the cluster API onto a router group
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/clusters/onboard", h.Onboard)
	api.POST("/clusters/detach", h.Detach)
	api.POST("/clusters/validate", h.Validate)
	api.GET("/clusters/status", h.Status)
	api.GET("/clusters/status/:name", h.SingleStatus)
	api.GET("/clusters/available", h.Available)
	api.PATCH("/clusters/labels/:name", h.UpdateLabels)
}

// ============== Onboarding Handlers ==============

type onboardRequest struct {
	ClusterName string `json:"clusterName"`
	Kubeconfig  string `json:"kubeconfig"`
}

// Onboard starts onboarding a cluster. The kubeconfig arrives as a
// multipart upload, inline JSON, or is sliced out of the operator's own
// kubeconfig when only a name is given.
func (h *Handlers) Onboard(c *gin.Context) {
	clusterName, kubeconfigData, ok := h.extractOnboardInput(c)
	if !ok {
		return
	}

	if clusterName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster name is required"})
		return
	}

	if err := kubeconfig.Validate(kubeconfigData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.orchestrator.StartOnboarding(kubeconfigData, clusterName)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "cluster is already being managed",
				"cluster": rec,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Onboarding started",
		"cluster": rec,
	})
}

// extractOnboardInput pulls the cluster name and kubeconfig out of the
// request, writing the error response itself when the input is unusable.
func (h *Handlers) extractOnboardInput(c *gin.Context) (string, []byte, bool) {
	contentType := c.GetHeader("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		file, _, err := c.Request.FormFile("kubeconfig")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kubeconfig file is required"})
			return "", nil, false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read kubeconfig file"})
			return "", nil, false
		}
		return c.PostForm("name"), data, true

	case strings.HasPrefix(contentType, "application/json"):
		var req onboardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return "", nil, false
		}
		if req.Kubeconfig != "" {
			return req.ClusterName, []byte(req.Kubeconfig), true
		}
		return h.resolveLocal(c, req.ClusterName)

	default:
		return h.resolveLocal(c, c.Query("name"))
	}
}

// resolveLocal slices the named cluster out of the operator's kubeconfig
func (h *Handlers) resolveLocal(c *gin.Context, name string) (string, []byte, bool) {
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster name is required"})
		return "", nil, false
	}
	data, err := h.resolver.FromLocal(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, false
	}
	return name, data, true
}

// ============== Detachment Handlers ==============

type detachRequest struct {
	ClusterName string `json:"clusterName"`
	Force       bool   `json:"force"`
}

// Detach starts detaching a managed cluster from the hub
func (h *Handlers) Detach(c *gin.Context) {
	var req detachRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClusterName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster name is required"})
		return
	}

	prior, err := h.orchestrator.StartDetach(req.ClusterName, req.Force)
	if err != nil {
		if errors.Is(err, onboarding.ErrNotTracked) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cluster is not being managed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Detachment started",
		"status":   models.StatusDetaching,
		"previous": prior,
	})
}

// ============== Status Handlers ==============

// Status returns all tracked cluster records with a summary by bucket
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clusters": h.store.List(),
		"summary":  h.store.Summary(),
	})
}

// SingleStatus returns the record for one tracked cluster
func (h *Handlers) SingleStatus(c *gin.Context) {
	name := c.Param("name")
	rec, exists := h.store.Get(name)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "cluster is not being managed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ============== Validation Handlers ==============

type validateRequest struct {
	Kubeconfig string `json:"kubeconfig"`
}

// Validate checks that a kubeconfig parses and can reach its cluster
// without starting any workflow.
func (h *Handlers) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Kubeconfig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kubeconfig is required"})
		return
	}

	data := []byte(req.Kubeconfig)
	if err := kubeconfig.Validate(data); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.orchestrator.ValidateTimeout)
	defer cancel()
	if err := h.orchestrator.ValidateConnectivity(ctx, data); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ============== Label Handlers ==============

type labelsRequest struct {
	Labels map[string]string `json:"labels"`
}

// UpdateLabels patches labels on a managed cluster. System label prefixes
// are protected; an empty value removes the label.
func (h *Handlers) UpdateLabels(c *gin.Context) {
	name := c.Param("name")

	var req labelsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Labels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "labels are required"})
		return
	}

	hub, err := h.clients.ForContext(h.cfg.Hub.Context)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to connect to hub: " + err.Error()})
		return
	}

	for key := range req.Labels {
		if onboarding.IsProtectedLabel(key) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot modify protected label: " + key})
			return
		}
	}

	if err := onboarding.ApplyLabels(c.Request.Context(), hub.Cluster, name, req.Labels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Labels updated", "clusterName": name})
}

// ============== Discovery Handlers ==============

// Available lists kubeconfig contexts that are candidates for onboarding:
// everything in the operator's kubeconfig except the hub context, clusters
// already tracked here, and clusters already registered at the hub.
func (h *Handlers) Available(c *gin.Context) {
	contexts, err := h.resolver.Contexts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	tracked := make(map[string]bool)
	for _, rec := range h.store.List() {
		tracked[rec.ClusterName] = true
	}

	// Registration state on the hub is advisory; skip it when unreachable
	registered := make(map[string]bool)
	if hub, err := h.clients.ForContext(h.cfg.Hub.Context); err == nil {
		if list, err := hub.Cluster.ClusterV1().ManagedClusters().List(c.Request.Context(), metav1.ListOptions{}); err == nil {
			for _, mc := range list.Items {
				registered[mc.Name] = true
			}
		}
	}

	available := contexts[:0]
	for _, ctx := range contexts {
		if ctx.Name == h.cfg.Hub.Context {
			continue
		}
		if tracked[ctx.Name] || tracked[ctx.Cluster] {
			continue
		}
		if registered[ctx.Name] || registered[ctx.Cluster] {
			continue
		}
		available = append(available, ctx)
	}

	c.JSON(http.StatusOK, gin.H{"contexts": available})
}
