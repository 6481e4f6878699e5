package k8s

import (
	"context"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/denniswebb/portfwd/internal/runtime"
)

const (
	// PodNetwork names the attachment carrying status.podIP.
	PodNetwork = "pod"
	// HostNetwork names the attachment carrying status.hostIP.
	HostNetwork = "host"
)

// ClientFactory builds a clientset for one lookup.
type ClientFactory func() (kubernetes.Interface, error)

// NewPodConnector returns a runtime.Connector resolving pods. Identifiers
// are "namespace/name" or a bare name in defaultNamespace.
func NewPodConnector(factory ClientFactory, defaultNamespace string) runtime.Connector {
	if defaultNamespace == "" {
		defaultNamespace = "default"
	}
	return func(ctx context.Context) (runtime.Inspector, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		client, err := factory()
		if err != nil {
			return nil, err
		}
		return &PodInspector{client: client, namespace: defaultNamespace}, nil
	}
}

// PodInspector exposes a pod's addresses as container network attachments.
type PodInspector struct {
	client    kubernetes.Interface
	namespace string
}

// NewPodInspector constructs a PodInspector for the given namespace.
func NewPodInspector(client kubernetes.Interface, namespace string) *PodInspector {
	return &PodInspector{client: client, namespace: namespace}
}

// Inspect reads the pod. Host-network pods report mode "host", all others "pod".
func (p *PodInspector) Inspect(ctx context.Context, idOrName string) (runtime.ContainerInfo, error) {
	namespace, name := p.namespace, idOrName
	if ns, n, ok := strings.Cut(idOrName, "/"); ok {
		namespace, name = ns, n
	}

	pod, err := p.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return runtime.ContainerInfo{}, fmt.Errorf("pod %s/%s: %w", namespace, name, runtime.ErrContainerNotFound)
		}
		return runtime.ContainerInfo{}, fmt.Errorf("get pod %s/%s: %w", namespace, name, err)
	}

	info := runtime.ContainerInfo{
		ID:          string(pod.UID),
		Name:        namespace + "/" + pod.Name,
		NetworkMode: PodNetwork,
		Networks:    map[string]runtime.Attachment{},
	}
	if pod.Spec.HostNetwork {
		info.NetworkMode = HostNetwork
	}
	if pod.Status.PodIP != "" {
		info.Networks[PodNetwork] = runtime.Attachment{IPAddress: pod.Status.PodIP}
	}
	if pod.Status.HostIP != "" {
		info.Networks[HostNetwork] = runtime.Attachment{IPAddress: pod.Status.HostIP}
	}
	return info, nil
}

// Ping asks the API server for its version.
func (p *PodInspector) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.client.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("reach kubernetes api server: %w", err)
	}
	return nil
}

// Close is a no-op; clientsets hold no per-lookup resources.
func (p *PodInspector) Close() error {
	return nil
}
