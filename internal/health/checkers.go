// Copyright (c) 2026 City Access Media

package health

import (
	"context"
	"fmt"
	"syscall"

	"github.com/cityaccess/vod-orchestrator/internal/config"
	"github.com/cityaccess/vod-orchestrator/internal/discovery"
)

// diskDegradedPercent is the disk-usage threshold at which a mount is
// reported degraded rather than healthy (spec.md §4.13).
const diskDegradedPercent = 85

// StorageChecker reports, per spec.md §4.13, whether every configured
// city's mount is present and writable, degrading a check to "degraded"
// once disk usage on that mount crosses diskDegradedPercent and to
// "unhealthy" once a mount is missing or not writable.
type StorageChecker struct {
	cities *config.Registry
}

// NewStorageChecker builds a checker over every city in cities.
func NewStorageChecker(cities *config.Registry) *StorageChecker {
	return &StorageChecker{cities: cities}
}

func (c *StorageChecker) Name() string    { return "storage" }
func (c *StorageChecker) Type() CheckType { return CheckHealth | CheckReadiness }

func (c *StorageChecker) Check(ctx context.Context) CheckResult {
	if c.cities == nil {
		return CheckResult{Status: StatusHealthy, Message: "no cities configured"}
	}

	worst := StatusHealthy
	var worstMsg string
	for _, city := range c.cities.Cities() {
		if !discovery.MountWritable(city.MountPath) {
			worst = StatusUnhealthy
			worstMsg = fmt.Sprintf("%s: mount missing or not writable", city.ID)
			continue
		}
		pct, err := diskUsedPercent(city.MountPath)
		if err != nil {
			if worst != StatusUnhealthy {
				worst = StatusDegraded
				worstMsg = fmt.Sprintf("%s: disk usage unknown: %v", city.ID, err)
			}
			continue
		}
		if pct >= diskDegradedPercent && worst != StatusUnhealthy {
			worst = StatusDegraded
			worstMsg = fmt.Sprintf("%s: disk %d%% used", city.ID, pct)
		}
	}

	if worstMsg == "" {
		worstMsg = "all city mounts present and writable"
	}
	return CheckResult{Status: worst, Message: worstMsg}
}

func diskUsedPercent(mountPath string) (int, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(mountPath, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("zero-size filesystem at %s", mountPath)
	}
	free := stat.Bavail * uint64(stat.Bsize)
	used := total - free
	return int(used * 100 / total), nil
}

// BrokerChecker reports whether the task broker is reachable.
type BrokerChecker struct {
	ping func(ctx context.Context) error
}

// NewBrokerChecker wraps a broker reachability probe (e.g. a Redis PING).
func NewBrokerChecker(ping func(ctx context.Context) error) *BrokerChecker {
	return &BrokerChecker{ping: ping}
}

func (c *BrokerChecker) Name() string    { return "broker" }
func (c *BrokerChecker) Type() CheckType { return CheckHealth | CheckReadiness }

func (c *BrokerChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "in-process broker, nothing to ping"}
	}
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "broker unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "broker reachable"}
}

// VODClientChecker reports upstream VOD platform reachability.
type VODClientChecker struct {
	testReachability func(ctx context.Context) error
}

// NewVODClientChecker wraps vodclient.Client.TestReachability.
func NewVODClientChecker(testReachability func(ctx context.Context) error) *VODClientChecker {
	return &VODClientChecker{testReachability: testReachability}
}

func (c *VODClientChecker) Name() string    { return "vod_client" }
func (c *VODClientChecker) Type() CheckType { return CheckReadiness }

func (c *VODClientChecker) Check(ctx context.Context) CheckResult {
	if err := c.testReachability(ctx); err != nil {
		// Degraded, not unhealthy: an unreachable upstream defers affected
		// pipeline runs rather than failing the whole process outright.
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "upstream VOD platform unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "upstream VOD platform reachable"}
}

// WorkerPresenceChecker reports whether at least one worker has reported in
// recently.
type WorkerPresenceChecker struct {
	activeCount func() int
}

// NewWorkerPresenceChecker wraps a callback returning the current count of
// active workers (e.g. a heartbeat registry).
func NewWorkerPresenceChecker(activeCount func() int) *WorkerPresenceChecker {
	return &WorkerPresenceChecker{activeCount: activeCount}
}

func (c *WorkerPresenceChecker) Name() string    { return "worker_presence" }
func (c *WorkerPresenceChecker) Type() CheckType { return CheckReadiness }

func (c *WorkerPresenceChecker) Check(ctx context.Context) CheckResult {
	n := c.activeCount()
	if n == 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "no active workers"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d active worker(s)", n)}
}
