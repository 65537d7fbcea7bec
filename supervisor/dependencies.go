package supervisor

import (
	"sync"
	"time"

	"github.com/arctir/corral/depgraph"
	"go.uber.org/zap"
)

// IsReadyFunc reports whether a named tool is ready to be depended upon.
// Typically satisfied once the tool reaches StatusRunning, or by a
// separate health check (spec.md's Glossary: "Ready").
type IsReadyFunc func(toolName string) bool

// StartAllToolsWithDependencies starts every non-virtual tool honoring
// declared dependencies: tools that declare at least one dependency are
// first marked StatusWaiting, then the dependency levels are started in
// order, the tools of one level concurrently. Before starting, each such
// tool polls isReady for every name in its DependsOn list (at
// dependencyPollInterval, up to timeout or the manager's default),
// including names depgraph ignores when levelling, such as unknown tools
// and self-references. On timeout the tool starts anyway, with a logged
// warning (spec.md §4.7).
func (m *ProcessManager) StartAllToolsWithDependencies(isReady IsReadyFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = m.dependencyTimeoutDefault()
	}

	m.mu.Lock()
	named := make([]namedConfig, 0, len(m.tools))
	indexByName := make(map[string]int, len(m.tools))
	for i, t := range m.tools {
		if t.IsVirtual {
			continue
		}
		named = append(named, namedConfig{t.Config})
		indexByName[t.Config.Name] = i
	}
	m.mu.Unlock()

	result := depgraph.Resolve(named)

	// Mark every tool with at least one dependency as waiting up front,
	// so observers see "waiting" before any level starts (spec.md §8
	// scenario 5).
	m.mu.Lock()
	for _, nc := range named {
		if len(nc.DependsOn()) == 0 {
			continue
		}
		idx := indexByName[nc.ToolName()]
		m.tools[idx].Status = StatusWaiting
	}
	m.mu.Unlock()
	for _, nc := range named {
		if len(nc.DependsOn()) > 0 {
			m.bus.Publish(indexByName[nc.ToolName()])
		}
	}

	for _, level := range result.Levels {
		if len(level) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, nc := range level {
			wg.Add(1)
			go func(nc namedConfig) {
				defer wg.Done()
				idx := indexByName[nc.ToolName()]
				if len(nc.DependsOn()) > 0 {
					if !m.waitForDependencies(nc.DependsOn(), isReady, timeout) {
						m.log.Warn("dependency wait timed out, starting anyway",
							zap.String("tool", nc.ToolName()),
							zap.Strings("dependsOn", nc.DependsOn()),
						)
						m.AddLogToTool(idx, "warning: timed out waiting on dependencies, starting anyway")
					}
				}
				m.StartTool(idx)
			}(nc)
		}
		wg.Wait()
	}
}

func (m *ProcessManager) dependencyTimeoutDefault() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dependencyTimeout
}

func (m *ProcessManager) dependencyPoll() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dependencyPollInterval
}

// waitForDependencies polls isReady for every name in deps until all are
// ready or timeout elapses, returning whether all became ready in time.
func (m *ProcessManager) waitForDependencies(deps []string, isReady IsReadyFunc, timeout time.Duration) bool {
	poll := m.dependencyPoll()
	deadline := time.Now().Add(timeout)
	for {
		allReady := true
		for _, dep := range deps {
			if !isReady(dep) {
				allReady = false
				break
			}
		}
		if allReady {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
