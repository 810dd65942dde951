// Package main implements the Datanode Manager coordinator service: the
// authoritative registry and lifecycle controller for storage nodes, exposed
// over HTTP/JSON.
//
// Endpoints:
//
//	POST /registerDatanode      - admit/replace/restart a node
//	POST /heartbeat             - periodic ping, returns a command list
//	POST /refreshNodes          - reload host files and reclassify
//	POST /setBalancerBandwidth  - broadcast a bandwidth value to all nodes
//	GET  /report?type=LIVE|DEAD|ALL|DECOMMISSIONING
//	GET  /nodes/{storageID}     - single descriptor lookup
//	GET  /metrics               - Prometheus scrape endpoint
//	GET  /health                - liveness probe
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/datanodemgr/internal/cluster"
	"github.com/dreamware/datanodemgr/internal/coordinator"
)

func main() {
	addr := getenv("DATANODE_MANAGER_ADDR", ":8080")

	mgr := coordinator.NewManager(configFromEnv(), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	router := newRouter(mgr)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.WithField("addr", addr).Info("datanode manager listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logrus.Info("shutting down")
	cancel()
	mgr.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http server shutdown error")
	}
}

func configFromEnv() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	if v := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HeartbeatIntervalSeconds = n
		}
	}
	if v := os.Getenv("DECOMMISSION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DecommissionInterval = d
		}
	}
	return cfg
}

func newRouter(mgr *coordinator.Manager) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/registerDatanode", handleRegister(mgr)).Methods(http.MethodPost)
	r.HandleFunc("/heartbeat", handleHeartbeat(mgr)).Methods(http.MethodPost)
	r.HandleFunc("/refreshNodes", handleRefreshNodes(mgr)).Methods(http.MethodPost)
	r.HandleFunc("/setBalancerBandwidth", handleSetBalancerBandwidth(mgr)).Methods(http.MethodPost)
	r.HandleFunc("/report", handleReport(mgr)).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{storageID}", handleGetNode(mgr)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(mgr.MetricsRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func handleRegister(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cluster.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		id, err := mgr.RegisterDatanode(coordinator.RegistrationInput{
			StorageID:       req.StorageID,
			IPAddr:          req.IPAddr,
			HostName:        req.HostName,
			PeerHostName:    req.PeerHostName,
			Ports:           coordinator.Ports(req.Ports),
			SoftwareVersion: req.SoftwareVersion,
			RemoteAddr:      remoteIP(r),
		})
		if err != nil {
			writeManagerError(w, err)
			return
		}

		writeJSON(w, cluster.RegisterResponse{StorageID: id})
	}
}

func handleHeartbeat(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cluster.HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		res := mgr.Heartbeat(coordinator.HeartbeatInput{
			StorageID: req.StorageID,
			IPAddr:    remoteIP(r),
			XferPort:  req.XferPort,
			Capacity: coordinator.HeartbeatCapacity{
				Capacity:      req.Capacity,
				DfsUsed:       req.DfsUsed,
				Remaining:     req.Remaining,
				BlockPoolUsed: req.BlockPoolUsed,
				CacheCapacity: req.CacheCapacity,
				CacheUsed:     req.CacheUsed,
				XceiverCount:  req.XceiverCount,
				FailedVolumes: req.FailedVolumes,
			},
			MaxTransfers: req.MaxTransfers,
		})
		if res.Err != nil {
			writeManagerError(w, res.Err)
			return
		}

		writeJSON(w, cluster.HeartbeatResponse{Commands: toWireCommands(res.Commands)})
	}
}

func handleRefreshNodes(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mgr.RefreshNodes()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSetBalancerBandwidth(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cluster.SetBalancerBandwidthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		mgr.SetBalancerBandwidth(req.Bandwidth)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleReport(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("type")
		var snaps []coordinator.DescriptorSnapshot
		switch kind {
		case "DEAD":
			snaps = mgr.GetDatanodeListForReport(coordinator.ReportDead)
		case "DECOMMISSIONING":
			snaps = mgr.GetDecommissioningNodes()
		case "ALL":
			snaps = mgr.GetDatanodeListForReport(coordinator.ReportAll)
		default:
			snaps = mgr.GetDatanodeListForReport(coordinator.ReportLive)
		}
		snaps = mgr.RemoveDecomNodesFromList(snaps)

		writeJSON(w, cluster.ReportResponse{Nodes: toWireInfos(snaps)})
	}
}

func handleGetNode(mgr *coordinator.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storageID := mux.Vars(r)["storageID"]
		all := mgr.GetDatanodeListForReport(coordinator.ReportAll)
		idx := slices.IndexFunc(all, func(d coordinator.DescriptorSnapshot) bool { return d.StorageID == storageID })
		if idx < 0 {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, toWireInfo(all[idx]))
	}
}

func toWireCommands(cmds []coordinator.Command) []cluster.Command {
	out := make([]cluster.Command, len(cmds))
	for i, c := range cmds {
		out[i] = cluster.Command{
			Kind:      cluster.CommandKind(c.Kind),
			Block:     c.Block,
			Blocks:    c.Blocks,
			Targets:   c.Targets,
			Locations: c.Locations,
			Bandwidth: c.Bandwidth,
		}
	}
	return out
}

func toWireInfo(d coordinator.DescriptorSnapshot) cluster.DatanodeInfo {
	return cluster.DatanodeInfo{
		StorageID:       d.StorageID,
		IPAddr:          d.IPAddr,
		HostName:        d.HostName,
		XferPort:        d.XferPort,
		NetworkLocation: d.NetworkLocation,
		AdminState:      d.Admin.String(),
		Disallowed:      d.Disallowed,
		IsAlive:         d.IsAlive,
		LastUpdate:      d.LastUpdate,
		SoftwareVersion: d.SoftwareVersion,
		Capacity:        d.Capacity,
		DfsUsed:         d.DfsUsed,
		Remaining:       d.Remaining,
	}
}

func toWireInfos(snaps []coordinator.DescriptorSnapshot) []cluster.DatanodeInfo {
	out := make([]cluster.DatanodeInfo, len(snaps))
	for i, d := range snaps {
		out[i] = toWireInfo(d)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func writeManagerError(w http.ResponseWriter, err error) {
	var disallowed *coordinator.DisallowedError
	var invalidTopology *coordinator.InvalidTopologyError
	switch {
	case asError(err, &disallowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case asError(err, &invalidTopology):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func asError[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
