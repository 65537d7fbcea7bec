package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/arctir/corral/ansiseg"
	"github.com/arctir/corral/linereader"
	"github.com/arctir/corral/pidregistry"
	"go.uber.org/zap"
)

// StartTool spawns tool i's child process and begins ingesting its
// stdout/stderr. A no-op for an invalid index or a tool already running
// (spec.md §4.7). Spawn failures transition the tool to StatusError and
// append a synthetic log line; they are never returned to the caller.
func (m *ProcessManager) StartTool(i int) {
	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	t := m.tools[i]
	if t.IsVirtual || t.HasProcess() {
		m.mu.Unlock()
		return
	}

	cmd := exec.Command(t.Config.Command, t.Config.Args...)
	if t.Config.Cwd != "" {
		cmd.Dir = t.Config.Cwd
	}
	cmd.Env = mergeEnv(os.Environ(), t.Config.Env)

	stdout, outErr := cmd.StdoutPipe()
	stderr, errErr := cmd.StderrPipe()
	if outErr != nil || errErr != nil {
		err := outErr
		if err == nil {
			err = errErr
		}
		m.failSpawnLocked(i, err)
		m.mu.Unlock()
		m.bus.Publish(i)
		return
	}

	if err := cmd.Start(); err != nil {
		m.failSpawnLocked(i, err)
		m.mu.Unlock()
		m.bus.Publish(i)
		return
	}

	t.process = cmd
	t.PID = cmd.Process.Pid
	t.StartTime = time.Now()
	t.isRunning = true
	t.Status = StatusRunning
	t.ExitCode = nil

	configPath := m.configPath
	name := t.Config.Name
	pid := t.PID
	startTime := t.StartTime
	cfg := t.Config
	instanceID := t.instanceID
	m.log.Info("tool started", zap.String("tool", name), zap.Int("pid", pid), zap.String("instanceID", instanceID.String()))
	m.mu.Unlock()

	reg := pidregistry.New(configPath)
	_ = reg.Update(pidregistry.PidFileEntry{
		ToolIndex: i,
		ToolName:  name,
		PID:       pid,
		StartTime: startTime.UnixMilli(),
		Command:   cfg.Command,
		Args:      cfg.Args,
		Cwd:       cfg.Cwd,
	})

	go m.pumpStream(i, stdout, false)
	go m.pumpStream(i, stderr, true)
	go m.waitForExit(i, cmd)

	m.bus.Publish(i)
}

// failSpawnLocked records a spawn failure. mu must already be held.
func (m *ProcessManager) failSpawnLocked(i int, err error) {
	t := m.tools[i]
	t.Status = StatusError
	m.log.Error("failed to start tool", zap.String("tool", t.Config.Name), zap.String("instanceID", t.instanceID.String()), zap.Error(err))
	m.appendLineLocked(i, LogLine{Segments: []TextSegment{{Text: fmt.Sprintf("failed to start: %s", err)}}})
}

// mergeEnv overlays overrides onto base ("name=value" pairs), matching
// the last-write-wins semantics of os/exec.Cmd.Env.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := append([]string{}, base...)
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// pumpStream reads r to EOF, splitting it into logical lines via
// linereader and styling them via ansiseg, appending (or replacing, for
// a CR-driven update) each into tool i's log. Matches the per-stream
// pump goroutines in the zmux-server process manager this package is
// grounded on.
func (m *ProcessManager) pumpStream(i int, r io.Reader, isStderr bool) {
	reader := linereader.New()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range reader.Write(buf[:n]) {
				m.ingestLine(i, line, isStderr)
			}
		}
		if err != nil {
			if last, ok := reader.Close(); ok {
				m.ingestLine(i, last, isStderr)
			}
			return
		}
	}
}

// ingestLine packages one decoded line as a LogLine via the ANSI
// segmenter and appends or replaces it in tool i's ring.
func (m *ProcessManager) ingestLine(i int, line linereader.Line, isStderr bool) {
	logLine := LogLine{
		Segments: ansiseg.Segment(line.Text),
		IsStderr: isStderr,
	}

	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	if line.IsReplacement && len(m.tools[i].Logs) > 0 {
		m.replaceLastLineLocked(i, logLine)
	} else {
		m.appendLineLocked(i, logLine)
	}
	m.mu.Unlock()

	m.bus.Publish(i)
}

// waitForExit blocks until cmd exits, then runs the process-exit path
// (spec.md §4.7): classify the final status, clear the live handle,
// remove the PID entry, publish, and append a synthetic exit log line.
func (m *ProcessManager) waitForExit(i int, cmd *exec.Cmd) {
	err := cmd.Wait()

	code := exitCodeOf(err)

	m.mu.Lock()
	t := m.tools[i]
	wasShuttingDown := t.Status == StatusShuttingDown
	if wasShuttingDown {
		t.Status = StatusStopped
	} else if code == 0 {
		t.Status = StatusStopped
	} else {
		t.Status = StatusError
	}
	t.process = nil
	t.PID = 0
	t.StartTime = time.Time{}
	t.isRunning = false
	ec := code
	t.ExitCode = &ec

	if m.isShutDown {
		m.recentlyStop[i] = true
	}

	configPath := m.configPath
	m.appendLineLocked(i, LogLine{Segments: []TextSegment{{Text: fmt.Sprintf("[Process exited with code %d]", code)}}})
	m.log.Info("tool exited", zap.String("tool", t.Config.Name), zap.Int("exitCode", code), zap.String("instanceID", t.instanceID.String()))
	m.mu.Unlock()

	_ = pidregistry.New(configPath).Remove(i)

	m.bus.Publish(i)
}

// exitCodeOf extracts a process exit code from the error os/exec.Cmd.Wait
// returns, treating a nil error (clean exit) as 0 and any non-ExitError
// failure (e.g. the binary could not be found, a signal with no exit
// code) as a generic non-zero failure code.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	type exitCoder interface{ ExitCode() int }
	if ee, ok := err.(exitCoder); ok {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
