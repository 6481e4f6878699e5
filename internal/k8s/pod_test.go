package k8s

import (
	"context"
	"errors"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/denniswebb/portfwd/internal/runtime"
)

func TestPodInspector_Inspect(t *testing.T) {
	t.Parallel()

	baseCtx := context.Background()

	type testCase struct {
		name        string
		pod         *corev1.Pod
		id          string
		prepare     func(client *fake.Clientset)
		wantMode    string
		wantNets    map[string]string
		expectError string
		expectIs    error
	}

	tests := []testCase{
		{
			name:     "bare name uses default namespace",
			pod:      newTestPod("apps", "web", false, "10.42.0.12", "192.168.5.15"),
			id:       "web",
			wantMode: PodNetwork,
			wantNets: map[string]string{PodNetwork: "10.42.0.12", HostNetwork: "192.168.5.15"},
		},
		{
			name:     "namespaced identifier",
			pod:      newTestPod("edge", "proxy", false, "10.42.1.3", "192.168.5.15"),
			id:       "edge/proxy",
			wantMode: PodNetwork,
			wantNets: map[string]string{PodNetwork: "10.42.1.3", HostNetwork: "192.168.5.15"},
		},
		{
			name:     "host network pod",
			pod:      newTestPod("apps", "node-exporter", true, "192.168.5.15", "192.168.5.15"),
			id:       "node-exporter",
			wantMode: HostNetwork,
			wantNets: map[string]string{PodNetwork: "192.168.5.15", HostNetwork: "192.168.5.15"},
		},
		{
			name:     "pending pod has no attachments",
			pod:      newTestPod("apps", "pending", false, "", ""),
			id:       "pending",
			wantMode: PodNetwork,
			wantNets: map[string]string{},
		},
		{
			name:        "missing pod maps to container not found",
			id:          "ghost",
			expectError: "pod apps/ghost",
			expectIs:    runtime.ErrContainerNotFound,
		},
		{
			name: "api error wrapped with context",
			pod:  newTestPod("apps", "web", false, "10.42.0.12", ""),
			id:   "web",
			prepare: func(client *fake.Clientset) {
				client.PrependReactor("get", "pods", func(action k8stesting.Action) (bool, k8sruntime.Object, error) {
					return true, nil, errors.New("boom")
				})
			},
			expectError: "get pod apps/web: boom",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var objects []k8sruntime.Object
			if tc.pod != nil {
				objects = append(objects, tc.pod)
			}
			client := fake.NewSimpleClientset(objects...)
			if tc.prepare != nil {
				tc.prepare(client)
			}

			info, err := NewPodInspector(client, "apps").Inspect(baseCtx, tc.id)

			if tc.expectError != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectError)
				}
				if !strings.Contains(err.Error(), tc.expectError) {
					t.Fatalf("expected error to contain %q, got %v", tc.expectError, err)
				}
				if tc.expectIs != nil && !errors.Is(err, tc.expectIs) {
					t.Fatalf("expected errors.Is(%v), got %v", tc.expectIs, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.NetworkMode != tc.wantMode {
				t.Fatalf("mode = %q, want %q", info.NetworkMode, tc.wantMode)
			}
			if len(info.Networks) != len(tc.wantNets) {
				t.Fatalf("networks = %+v, want %+v", info.Networks, tc.wantNets)
			}
			for name, ip := range tc.wantNets {
				if info.Networks[name].IPAddress != ip {
					t.Fatalf("network %s = %q, want %q", name, info.Networks[name].IPAddress, ip)
				}
			}
		})
	}
}

func TestPodConnectorResolvesPodIP(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset(newTestPod("apps", "web", false, "10.42.0.12", "192.168.5.15"))
	builds := 0
	connect := NewPodConnector(func() (kubernetes.Interface, error) {
		builds++
		return client, nil
	}, "apps")

	resolver := runtime.NewResolver(connect, "", nil)

	ip, err := resolver.ResolveIP(context.Background(), "web", "")
	if err != nil {
		t.Fatalf("ResolveIP returned error: %v", err)
	}
	if ip != "10.42.0.12" {
		t.Fatalf("ResolveIP = %q, want pod IP", ip)
	}

	hostIP, err := resolver.ResolveIP(context.Background(), "web", HostNetwork)
	if err != nil {
		t.Fatalf("ResolveIP host returned error: %v", err)
	}
	if hostIP != "192.168.5.15" {
		t.Fatalf("ResolveIP host = %q, want host IP", hostIP)
	}

	if builds != 2 {
		t.Fatalf("expected a clientset per lookup, got %d", builds)
	}
}

func TestPodConnectorFactoryError(t *testing.T) {
	t.Parallel()

	connect := NewPodConnector(func() (kubernetes.Interface, error) {
		return nil, errors.New("build in-cluster config: not running in a cluster")
	}, "")

	if _, err := connect(context.Background()); err == nil {
		t.Fatal("expected factory error")
	}
}

func TestPodConnectorProbe(t *testing.T) {
	t.Parallel()

	client := fake.NewSimpleClientset()
	connect := NewPodConnector(func() (kubernetes.Interface, error) {
		return client, nil
	}, "")

	if err := runtime.Probe(context.Background(), connect); err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewPodInspector(client, "default").Ping(ctx); err == nil {
		t.Fatal("expected canceled context to fail the ping")
	}
}

func newTestPod(namespace, name string, hostNetwork bool, podIP, hostIP string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
			UID:       "uid-" + name,
		},
		Spec: corev1.PodSpec{
			HostNetwork: hostNetwork,
		},
		Status: corev1.PodStatus{
			PodIP:  podIP,
			HostIP: hostIP,
		},
	}
}
