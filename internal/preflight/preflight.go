// Package preflight runs the environment checks behind the doctor command:
// configuration validity, directory access, store reachability and
// integrity, and batch-lock availability.
package preflight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"coalesce/internal/config"
	"coalesce/internal/logging"
	"coalesce/internal/store"
)

// Status is the outcome of one check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is one named environment probe with its outcome.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result collects every check of a doctor run.
type Result struct {
	Checks []Check `json:"checks"`
}

// Healthy reports whether no check failed. Warnings do not count as
// failures; they flag things an operator should look at.
func (r *Result) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

func (r *Result) add(name string, status Status, detail string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: detail})
}

// Run executes every preflight check against the given configuration.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Result {
	logger = logging.NewComponentLogger(logger, "preflight")
	result := &Result{}

	checkConfig(cfg, result)
	checkDirectories(cfg, result)
	checkStore(ctx, cfg, result)
	checkLock(cfg, result)

	for _, c := range result.Checks {
		if c.Status == StatusFail {
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", c.Name),
				logging.String("detail", c.Detail),
			)
		}
	}
	return result
}

func checkConfig(cfg *config.Config, result *Result) {
	if err := cfg.Validate(); err != nil {
		result.add("config", StatusFail, err.Error())
		return
	}
	result.add("config", StatusOK, fmt.Sprintf("threshold %d, weights sum to %d",
		cfg.Matching.Threshold, cfg.Matching.Weights.Sum()))
}

func checkDirectories(cfg *config.Config, result *Result) {
	if err := cfg.EnsureDirectories(); err != nil {
		result.add("directories", StatusFail, err.Error())
		return
	}
	for _, dir := range []struct {
		name string
		path string
	}{
		{"data directory", cfg.Paths.DataDir},
		{"log directory", cfg.Paths.LogDir},
	} {
		if err := unix.Access(dir.path, unix.W_OK); err != nil {
			result.add(dir.name, StatusFail, fmt.Sprintf("%s is not writable: %v", dir.path, err))
			continue
		}
		result.add(dir.name, StatusOK, dir.path)
	}
}

func checkStore(ctx context.Context, cfg *config.Config, result *Result) {
	s, err := store.Open(cfg)
	if err != nil {
		result.add("database", StatusFail, err.Error())
		return
	}
	defer func() { _ = s.Close() }()

	if err := s.IntegrityCheck(ctx); err != nil {
		result.add("database", StatusFail, err.Error())
		return
	}
	result.add("database", StatusOK, s.Path())

	halted, err := s.LatestHaltedBatch(ctx)
	if err != nil {
		result.add("halt latch", StatusFail, err.Error())
		return
	}
	if halted != nil {
		result.add("halt latch", StatusWarn,
			fmt.Sprintf("batch %s halted: %s (run verify to clear)", halted.ID, halted.HaltReason))
		return
	}
	result.add("halt latch", StatusOK, "clear")
}

func checkLock(cfg *config.Config, result *Result) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		result.add("batch lock", StatusFail, err.Error())
		return
	}
	if !locked {
		result.add("batch lock", StatusWarn, "held by another coalesce process")
		return
	}
	_ = lock.Unlock()
	result.add("batch lock", StatusOK, cfg.LockPath())
}
