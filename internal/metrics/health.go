package metrics

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/denniswebb/portfwd/internal/logging"
)

// HealthChecker reports whether serve can both read the forwarding chain and
// reach the container runtime. Both start out false until the first check.
type HealthChecker struct {
	mu               sync.RWMutex
	chainVerified    bool
	runtimeReachable bool
	logger           *slog.Logger
}

func NewHealthChecker() *HealthChecker {
	logger := logging.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{logger: logger}
}

// SetChainVerified stores the outcome of the last chain listing.
func (h *HealthChecker) SetChainVerified(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chainVerified = ok
}

// SetRuntimeReachable stores the outcome of the last runtime ping.
func (h *HealthChecker) SetRuntimeReachable(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runtimeReachable = ok
}

func (h *HealthChecker) IsHealthy() bool {
	return len(h.failing()) == 0
}

func (h *HealthChecker) failing() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var failed []string
	if !h.chainVerified {
		failed = append(failed, "chain")
	}
	if !h.runtimeReachable {
		failed = append(failed, "runtime")
	}
	return failed
}

// Handler serves /healthz: 200 "ok" when ready, otherwise 503 naming the
// failing checks, e.g. "unready: chain,runtime".
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		failed := h.failing()
		if len(failed) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
			return
		}

		checks := strings.Join(failed, ",")
		h.logger.Warn("portfwd not ready", slog.String("failing_checks", checks))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unready: " + checks + "\n"))
	})
}
