// Package kube wraps the Kubernetes API for the serving controller.
// It exposes the small typed surface the lifecycle manager needs:
// conflict-aware workload submission, owner-bound service creation,
// label-scoped listing, and idempotent deletion.
package kube

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

// SubmitOutcome is the result of a workload submission.
//
// Submission is modeled as an explicit result instead of error
// sniffing at call sites: AlreadyExists is an expected outcome, not a
// failure.
type SubmitOutcome string

const (
	SubmitCreated       SubmitOutcome = "created"
	SubmitAlreadyExists SubmitOutcome = "already_exists"
	SubmitFailed        SubmitOutcome = "failed"
)

// Client is a namespace-scoped Kubernetes client for serving workloads.
type Client struct {
	clientset kubernetes.Interface
	namespace string
	logger    *zap.Logger
}

// NewClient creates a Client bound to one namespace.
func NewClient(clientset kubernetes.Interface, namespace string, logger *zap.Logger) *Client {
	return &Client{
		clientset: clientset,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "kube")),
	}
}

// Namespace returns the namespace this client operates in.
func (c *Client) Namespace() string {
	return c.namespace
}

// DeployStatefulSet submits a StatefulSet. A name conflict is reported
// as SubmitAlreadyExists with a nil error; any other failure is
// SubmitFailed.
func (c *Client) DeployStatefulSet(ctx context.Context, ss *appsv1.StatefulSet) (*appsv1.StatefulSet, SubmitOutcome, error) {
	created, err := c.clientset.AppsV1().StatefulSets(c.namespace).Create(ctx, ss, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			c.logger.Debug("stateful set already exists", zap.String("name", ss.Name))
			return nil, SubmitAlreadyExists, nil
		}
		return nil, SubmitFailed, fmt.Errorf("create stateful set %q: %w", ss.Name, err)
	}
	return created, SubmitCreated, nil
}

// DeployService creates a Service. An existing service with the same
// name is treated as success.
func (c *Client) DeployService(ctx context.Context, svc *corev1.Service) error {
	_, err := c.clientset.CoreV1().Services(c.namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create service %q: %w", svc.Name, err)
	}
	return nil
}

// ListStatefulSets lists StatefulSets matching the label selector.
func (c *Client) ListStatefulSets(ctx context.Context, selector map[string]string) ([]appsv1.StatefulSet, error) {
	list, err := c.clientset.AppsV1().StatefulSets(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.Set(selector).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list stateful sets: %w", err)
	}
	return list.Items, nil
}

// ListPods lists Pods matching the label selector.
func (c *Client) ListPods(ctx context.Context, selector map[string]string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.Set(selector).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	return list.Items, nil
}

// DeleteStatefulSet deletes a StatefulSet by name. Not-found is
// success: the goal state is already satisfied.
func (c *Client) DeleteStatefulSet(ctx context.Context, name string) error {
	err := c.clientset.AppsV1().StatefulSets(c.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			c.logger.Debug("stateful set already gone", zap.String("name", name))
			return nil
		}
		return fmt.Errorf("delete stateful set %q: %w", name, err)
	}
	return nil
}
