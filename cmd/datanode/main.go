// Package main implements a reference datanode client: it registers with
// the coordinator's Datanode Manager, then heartbeats on a fixed interval,
// applying whatever commands the response carries.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/datanodemgr/internal/cluster"
)

func main() {
	coordinatorAddr := getenv("COORDINATOR_ADDR", "http://localhost:8080")
	ipAddr := getenv("DATANODE_IP", "127.0.0.1")
	hostName := getenv("DATANODE_HOSTNAME", "localhost")
	xferPort := getenvInt("DATANODE_XFER_PORT", 50010)
	heartbeatInterval := getenvDuration("DATANODE_HEARTBEAT_INTERVAL", 3*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	d := &datanode{
		coordinatorAddr: coordinatorAddr,
		ipAddr:          ipAddr,
		hostName:        hostName,
		xferPort:        xferPort,
	}

	if err := d.register(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to register after retries")
	}
	logrus.WithField("storage_id", d.storageID).Info("registered with coordinator")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("datanode shutting down")
			return
		case <-ticker.C:
			d.heartbeat(ctx)
		}
	}
}

type datanode struct {
	coordinatorAddr string
	ipAddr          string
	hostName        string
	xferPort        int
	storageID       string
}

// register retries with backoff, since the coordinator may not be up yet
// when the datanode process starts.
func (d *datanode) register(ctx context.Context) error {
	return retry.Do(
		func() error {
			req := cluster.RegisterRequest{
				StorageID:       d.storageID,
				IPAddr:          d.ipAddr,
				HostName:        d.hostName,
				Ports:           cluster.Ports{Xfer: d.xferPort},
				SoftwareVersion: "1.0",
			}
			var resp cluster.RegisterResponse
			if err := cluster.PostJSON(ctx, d.coordinatorAddr+"/registerDatanode", req, &resp); err != nil {
				return err
			}
			d.storageID = resp.StorageID
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.OnRetry(func(n uint, err error) {
			logrus.WithError(err).WithField("attempt", n+1).Warn("registration failed, retrying")
		}),
	)
}

// heartbeat sends one ping and applies any commands in the response. A
// REGISTER command means the coordinator no longer recognizes this node's
// address and it must re-register before anything else will work.
func (d *datanode) heartbeat(ctx context.Context) {
	req := cluster.HeartbeatRequest{
		StorageID:    d.storageID,
		XferPort:     d.xferPort,
		Capacity:     1 << 40,
		MaxTransfers: 10,
	}
	var resp cluster.HeartbeatResponse
	if err := cluster.PostJSON(ctx, d.coordinatorAddr+"/heartbeat", req, &resp); err != nil {
		logrus.WithError(err).Warn("heartbeat failed")
		return
	}

	for _, cmd := range resp.Commands {
		d.apply(ctx, cmd)
	}
}

func (d *datanode) apply(ctx context.Context, cmd cluster.Command) {
	switch cmd.Kind {
	case cluster.CommandRegister:
		logrus.Warn("coordinator asked for re-registration")
		d.storageID = ""
		if err := d.register(ctx); err != nil {
			logrus.WithError(err).Error("re-registration failed")
		}
	case cluster.CommandTransfer:
		logrus.WithFields(logrus.Fields{"block": cmd.Block, "targets": cmd.Targets}).Info("would transfer block")
	case cluster.CommandInvalidate:
		logrus.WithField("count", len(cmd.Blocks)).Info("would invalidate blocks")
	case cluster.CommandCache:
		logrus.WithField("count", len(cmd.Blocks)).Info("would cache blocks")
	case cluster.CommandUncache:
		logrus.WithField("count", len(cmd.Blocks)).Info("would uncache blocks")
	case cluster.CommandKeyUpdate:
		logrus.Info("would rotate block access keys")
	case cluster.CommandBandwidth:
		logrus.WithField("bandwidth", cmd.Bandwidth).Info("would set balancer bandwidth")
	case cluster.CommandRecovery:
		logrus.WithFields(logrus.Fields{"block": cmd.Block, "locations": cmd.Locations}).Info("would drive lease recovery")
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
