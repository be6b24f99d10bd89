// Package hooks runs user scripts at points of the update lifecycle.
//
// Scripts live in <dir>/<point>/ and run in name order when executable.
// Each script receives the hook point and caller values as FRESHSHELL_*
// environment variables.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cristianoliveira/freshshell/internal/config"
	"github.com/cristianoliveira/freshshell/internal/logging"
)

// Hook points.
const (
	UpdateAvailable = "update-available"
	Reload          = "reload"
)

// FailureMode decides what a failing synchronous hook does to the run.
type FailureMode string

const (
	FailAbort  FailureMode = "abort"
	FailWarn   FailureMode = "warn"
	FailIgnore FailureMode = "ignore"
)

// EnvPrefix prefixes every variable a hook receives from the runner.
const EnvPrefix = "FRESHSHELL_HOOK_"

// Config configures a Runner.
type Config struct {
	Dir          string
	Enabled      bool
	FailureMode  FailureMode
	Async        bool
	AsyncTimeout time.Duration
	MaxAsync     int
	Logger       logging.Logger
}

// ConfigFromSettings reads the hooks_* keys of the loaded configuration.
func ConfigFromSettings() Config {
	return Config{
		Dir:          config.Get("hooks_dir", ""),
		Enabled:      config.GetBool("hooks_enabled", true),
		FailureMode:  FailureMode(config.Get("hooks_failure_mode", string(FailWarn))),
		Async:        config.GetBool("hooks_async", false),
		AsyncTimeout: config.GetSeconds("hooks_async_timeout_seconds", 30*time.Second),
		MaxAsync:     config.GetInt("hooks_max_async", 10),
	}
}

// Runner executes hook scripts.
type Runner struct {
	cfg Config
	log logging.Logger

	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

// New creates a runner. A zero Dir disables every hook point.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.FailureMode == "" {
		cfg.FailureMode = FailWarn
	}
	if cfg.AsyncTimeout <= 0 {
		cfg.AsyncTimeout = 30 * time.Second
	}
	if cfg.MaxAsync <= 0 {
		cfg.MaxAsync = 10
	}
	return &Runner{cfg: cfg, log: cfg.Logger.With("component", "hooks")}
}

// Scripts lists the executable scripts for a hook point in run order.
func (r *Runner) Scripts(point string) []string {
	if r == nil || !r.cfg.Enabled || r.cfg.Dir == "" {
		return nil
	}
	dir := filepath.Join(r.cfg.Dir, point)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var scripts []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		scripts = append(scripts, filepath.Join(dir, f.Name()))
	}
	sort.Strings(scripts)
	return scripts
}

// Run executes the scripts of a hook point. vars become FRESHSHELL_HOOK_<KEY>.
// In abort mode the first failing synchronous script stops the run and its
// error is returned. A nil runner does nothing.
func (r *Runner) Run(ctx context.Context, point string, vars map[string]string) error {
	scripts := r.Scripts(point)
	if len(scripts) == 0 {
		return nil
	}
	env := r.environ(point, vars)
	r.log.Debug("running hooks", "point", point, "count", len(scripts))

	for _, script := range scripts {
		if r.cfg.Async {
			r.startAsync(script, env)
			continue
		}
		if err := r.runSync(ctx, script, env); err != nil && r.cfg.FailureMode == FailAbort {
			return err
		}
	}
	return nil
}

// Wait blocks until every asynchronous hook has finished.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// Pending reports how many asynchronous hooks are running.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Runner) environ(point string, vars map[string]string) []string {
	env := os.Environ()
	env = append(env,
		EnvPrefix+"POINT="+point,
		EnvPrefix+"TIMESTAMP="+time.Now().Format(time.RFC3339),
	)
	if exe, err := os.Executable(); err == nil {
		env = append(env, EnvPrefix+"BINARY="+exe)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, EnvPrefix+envKey(k)+"="+vars[k])
	}
	return env
}

func envKey(k string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
}

func (r *Runner) runSync(ctx context.Context, script string, env []string) error {
	name := filepath.Base(script)
	start := time.Now()
	cmd := exec.CommandContext(ctx, script)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err == nil {
		r.log.Debug("hook completed", "script", name, "duration", time.Since(start))
		return nil
	}
	err = fmt.Errorf("hook %s: %w", name, err)
	switch r.cfg.FailureMode {
	case FailIgnore:
	default:
		r.log.Warn("hook failed", "script", name, "error", err, "output", strings.TrimSpace(string(output)))
	}
	return err
}

func (r *Runner) startAsync(script string, env []string) {
	name := filepath.Base(script)
	r.mu.Lock()
	if r.pending >= r.cfg.MaxAsync {
		r.mu.Unlock()
		r.log.Warn("too many pending hooks, skipping", "script", name, "max", r.cfg.MaxAsync)
		return
	}
	r.pending++
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.pending--
			r.mu.Unlock()
			r.wg.Done()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AsyncTimeout)
		defer cancel()
		if err := r.runSync(ctx, script, env); err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.log.Warn("hook timed out", "script", name, "timeout", r.cfg.AsyncTimeout)
		}
	}()
}
