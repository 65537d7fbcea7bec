package supervisor

import (
	"github.com/arctir/corral/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reload replaces every non-virtual tool's configuration with configs,
// stopping whichever of the old tools are currently running first.
// Virtual tools (e.g. the control API's own log, any MCP-spawned
// instance) survive a reload unchanged, re-appended after the
// reconfigured tools with freshly assigned indices (spec.md §4.7
// "Reload"). configPath, if non-empty, replaces the manager's
// configuration path for future Initialize/Cleanup PID-file lookups;
// Reload itself never touches the PID registry — only Initialize reaps
// orphans from it.
//
// isShuttingDown is set and published before the old tools are stopped,
// and cleared once they have all stopped, the same shutdown flag
// Cleanup uses — so a tool exiting during Reload's stop loop lands in
// recentlyStopped instead of looking like a crash (spec.md §4.7
// "Shutdown flag").
//
// An empty configs slice is rejected with ErrEmptyConfig: Reload never
// leaves the manager managing zero tools from what was previously a
// populated configuration, since that is almost always a parse error
// upstream rather than an intentional "stop everything".
func (m *ProcessManager) Reload(configs []ToolConfig, configPath string) ([]Snapshot, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyConfig
	}

	m.mu.Lock()
	oldTools := m.tools
	m.isShutDown = true
	m.mu.Unlock()

	m.bus.Publish(pubsub.AllKey)

	for i, t := range oldTools {
		m.mu.Lock()
		running := i < len(m.tools) && t.HasProcess() && !t.IsVirtual
		m.mu.Unlock()
		if running {
			m.StopTool(i)
			m.waitUntilStopped(i)
		}
	}

	m.mu.Lock()
	m.isShutDown = false

	if configPath != "" {
		m.configPath = configPath
	}

	newTools := make([]*ToolState, 0, len(configs)+len(m.virtualIdx))
	for _, c := range configs {
		instanceID := uuid.New()
		newTools = append(newTools, &ToolState{
			Config:     c,
			Status:     StatusStopped,
			instanceID: instanceID,
		})
		m.log.Info("tool reconfigured", zap.String("tool", c.Name), zap.String("instanceID", instanceID.String()))
	}

	newVirtualIdx := make(map[int]bool, len(m.virtualIdx))
	for _, t := range oldTools {
		if !t.IsVirtual {
			continue
		}
		idx := len(newTools)
		newTools = append(newTools, t)
		newVirtualIdx[idx] = true
	}

	m.tools = newTools
	m.virtualIdx = newVirtualIdx
	m.bus.ClearIndexed()

	m.log.Info("configuration reloaded", zap.Int("toolCount", len(configs)))

	out := m.snapshotAllLocked()
	m.mu.Unlock()

	m.bus.Publish(pubsub.AllKey)

	return out, nil
}
