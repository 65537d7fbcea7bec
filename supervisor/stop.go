package supervisor

import (
	"os/exec"
	"sync"
	"time"

	"github.com/arctir/corral/pidregistry"
	"github.com/arctir/corral/procutil"
	"github.com/arctir/corral/pubsub"
	"go.uber.org/zap"
)

// StopTool sends a graceful term signal to tool i's child and waits up
// to gracefulShutdownTimeout for it to exit, transitioning to
// StatusStopped. If the child is still alive when the timeout elapses,
// StopTool leaves the final kill to Cleanup, per spec.md §4.7. A no-op
// if the tool is not running.
func (m *ProcessManager) StopTool(i int) {
	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	t := m.tools[i]
	if t.IsVirtual || !t.HasProcess() {
		m.mu.Unlock()
		return
	}
	pid := t.PID
	if t.Status != StatusShuttingDown {
		t.Status = StatusShuttingDown
	}
	m.mu.Unlock()

	m.bus.Publish(i)

	procutil.KillProcess(pid, procutil.SignalTerm)

	deadline := time.Now().Add(m.gracefulTimeout())
	for time.Now().Before(deadline) {
		if !procutil.IsProcessRunning(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// waitForExit (started by StartTool) observes the real exit and
	// performs the canonical state transition; nothing further to do
	// here if it already has. If the process outlived the deadline,
	// status stays shuttingDown until Cleanup force-kills it.
}

func (m *ProcessManager) gracefulTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gracefulShutdownTimeout
}

// RestartTool stops tool i if running (force-killing on timeout) then
// starts it again, preserving its index and configuration.
func (m *ProcessManager) RestartTool(i int) {
	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	t := m.tools[i]
	if t.IsVirtual {
		m.mu.Unlock()
		return
	}
	wasRunning := t.HasProcess()
	pid := t.PID
	m.mu.Unlock()

	if wasRunning {
		m.StopTool(i)
		procutil.KillProcessGracefully(pid, m.gracefulTimeout())
		m.waitUntilStopped(i)
	}

	m.StartTool(i)
}

// waitUntilStopped blocks briefly until tool i is no longer reporting a
// live process, bounding the wait the same way StopTool does.
func (m *ProcessManager) waitUntilStopped(i int) {
	deadline := time.Now().Add(m.gracefulTimeout())
	for time.Now().Before(deadline) {
		m.mu.Lock()
		running := i < len(m.tools) && m.tools[i].HasProcess()
		m.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// KillAllSync signals term to every tool with a live child without
// waiting for exit, for use from an unexpected-exit hook where blocking
// is unsafe (spec.md §4.7, §5).
func (m *ProcessManager) KillAllSync() {
	m.mu.Lock()
	pids := make([]int, 0, len(m.tools))
	for _, t := range m.tools {
		if t.HasProcess() {
			pids = append(pids, t.PID)
		}
	}
	m.mu.Unlock()

	for _, pid := range pids {
		procutil.KillProcess(pid, procutil.SignalTerm)
	}
}

// Cleanup gracefully shuts down every running tool in parallel, force
// kills any stragglers, runs each tool's cleanup shell commands in
// parallel, and deletes the PID file (spec.md §4.7).
func (m *ProcessManager) Cleanup() {
	m.mu.Lock()
	m.isShutDown = true
	m.recentlyStop = make(map[int]bool)
	running := make([]int, 0, len(m.tools))
	cleanupCmds := make([][]string, len(m.tools))
	pidsByIndex := make(map[int]int, len(m.tools))
	for i, t := range m.tools {
		if t.IsVirtual {
			continue
		}
		if t.HasProcess() {
			running = append(running, i)
			pidsByIndex[i] = t.PID
		}
		cleanupCmds[i] = t.Config.Cleanup
	}
	configPath := m.configPath
	m.mu.Unlock()

	m.bus.Publish(pubsub.AllKey)

	var wg sync.WaitGroup
	for _, i := range running {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.StopTool(i)
			if pid, ok := pidsByIndex[i]; ok && procutil.IsProcessRunning(pid) {
				procutil.KillProcess(pid, procutil.SignalKill)
			}
		}(i)
	}
	wg.Wait()

	var cleanupWG sync.WaitGroup
	for _, cmds := range cleanupCmds {
		for _, c := range cmds {
			cleanupWG.Add(1)
			go func(c string) {
				defer cleanupWG.Done()
				runCleanupCommand(c, m.log)
			}(c)
		}
	}
	cleanupWG.Wait()

	_ = pidregistry.New(configPath).Delete()

	m.mu.Lock()
	m.isShutDown = false
	m.mu.Unlock()
}

// runCleanupCommand runs one shell command via "sh -c", logging failure
// to standard error but never propagating it — a cleanup command's
// failure must never fail Cleanup as a whole (spec.md §7).
func runCleanupCommand(command string, log *zap.Logger) {
	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Run(); err != nil {
		log.Warn("cleanup command failed", zap.String("command", command), zap.Error(err))
	}
}
