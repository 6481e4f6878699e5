package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/denniswebb/portfwd/internal/portmap"
	"github.com/denniswebb/portfwd/internal/runtime"
)

// PortManager is the subset of *portmap.Manager the API drives.
type PortManager interface {
	ResolveIP(ctx context.Context, container string, network string) (string, error)
	AddPorts(ctx context.Context, container string, ports []string, opts ...portmap.AddOption) (portmap.Result, error)
	DelPorts(ctx context.Context, ports []string) (portmap.Result, error)
	ListMappings(ctx context.Context) ([]portmap.PortMapping, error)
}

// Handler serves the port mapping HTTP API.
type Handler struct {
	manager PortManager
	logger  *slog.Logger
}

// ErrorResponse is the body written for failed requests.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type addRequest struct {
	Ports   []string `json:"ports"`
	Network string   `json:"network"`
}

type deleteRequest struct {
	Ports []string `json:"ports"`
}

type ipResponse struct {
	Container string `json:"container"`
	Network   string `json:"network,omitempty"`
	IP        string `json:"ip"`
}

// NewHandler returns the API handler for manager.
func NewHandler(manager PortManager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// NewRouter registers the API routes plus any extra handlers, such as
// /metrics and /healthz, on a new router.
func NewRouter(h *Handler, extra map[string]http.Handler) *mux.Router {
	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/containers/{container:.+}/ip", h.GetContainerIP).Methods(http.MethodGet)
	v1.HandleFunc("/containers/{container:.+}/ports", h.AddPorts).Methods(http.MethodPost)
	v1.HandleFunc("/ports", h.ListPorts).Methods(http.MethodGet)
	v1.HandleFunc("/ports", h.DeletePorts).Methods(http.MethodDelete)

	for path, handler := range extra {
		router.Handle(path, handler).Methods(http.MethodGet)
	}
	return router
}

// GetContainerIP resolves the address of a container on an optional network.
func (h *Handler) GetContainerIP(w http.ResponseWriter, r *http.Request) {
	container := mux.Vars(r)["container"]
	network := r.URL.Query().Get("network")

	ip, err := h.manager.ResolveIP(r.Context(), container, network)
	if err != nil {
		h.writeError(w, resolveStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ipResponse{Container: container, Network: network, IP: ip})
}

// AddPorts forwards host ports to the container named in the path.
func (h *Handler) AddPorts(w http.ResponseWriter, r *http.Request) {
	container := mux.Vars(r)["container"]

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "couldn't parse JSON request")
		return
	}
	if _, err := portmap.ParsePortPairs(req.Ports); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var opts []portmap.AddOption
	if req.Network != "" {
		opts = append(opts, portmap.OnNetwork(req.Network))
	}

	result, err := h.manager.AddPorts(r.Context(), container, req.Ports, opts...)
	if err != nil {
		h.writeError(w, resolveStatus(err), err)
		return
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

// DeletePorts removes the rules for the listed host ports.
func (h *Handler) DeletePorts(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "couldn't parse JSON request")
		return
	}
	if len(req.Ports) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "at least one host port must be provided")
		return
	}

	result, err := h.manager.DelPorts(r.Context(), req.Ports)
	if err != nil {
		h.logger.Warn("delete request interrupted", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// ListPorts returns the DNAT mappings currently in the chain.
func (h *Handler) ListPorts(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.manager.ListMappings(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, runtime.ErrContainerNotFound), errors.Is(err, runtime.ErrNetworkNotFound):
		return http.StatusNotFound
	case errors.Is(err, runtime.ErrNoAddress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("request failed",
		slog.Int("status", status),
		slog.Any("error", err),
	)
	writeErrorResponse(w, status, err.Error())
}

func writeErrorResponse(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Message: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		slog.Default().Debug("writing response body failed", slog.Any("error", err))
	}
}
