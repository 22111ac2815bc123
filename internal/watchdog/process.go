package watchdog

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/logging"
)

// processAlive implements signal-zero liveness: a process is alive if the
// no-op signal succeeds or is denied; dead only when the OS reports no such
// process.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, unix.EPERM) {
		return true
	}
	return false
}

func terminateProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil // already gone
		}
		return err
	}
	return nil
}

func killProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// spawnWorker starts the worker binary detached in its own session so the
// host process may exit without taking the worker down.
func spawnWorker(transcriptsDir string) (int, error) {
	binary := findWorkerBinary()
	if binary == "" {
		return 0, fmt.Errorf("worker binary not found")
	}

	cmd := exec.Command(binary, "--transcripts-dir", transcriptsDir) // #nosec G204 -- binary from findWorkerBinary
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// The worker owns its stdio; progress goes to the extraction log.
	logger := logging.Get(config.Get().LogsDir())
	if path := logging.Path(); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil { // #nosec G304
			cmd.Stdout = f
			cmd.Stderr = f
		}
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Reap the child in the background to avoid zombies if we outlive it.
	go func() { _ = cmd.Wait() }()

	logger.Info().Int("pid", pid).Str("binary", binary).Msg("Worker spawned")
	return pid, nil
}

// findWorkerBinary locates the worker executable: explicit setting first,
// then alongside the current executable, then ./recall-worker and
// ./bin/recall-worker, then PATH.
func findWorkerBinary() string {
	if configured := config.Get().WorkerBinary; configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "recall-worker")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	for _, loc := range []string{"./recall-worker", "./bin/recall-worker"} {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	if path, err := exec.LookPath("recall-worker"); err == nil {
		return path
	}

	return ""
}
