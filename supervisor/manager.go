package supervisor

import (
	"sync"
	"time"

	"github.com/arctir/corral/pidregistry"
	"github.com/arctir/corral/procutil"
	"github.com/arctir/corral/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxLogLines is the default per-tool ring buffer capacity.
	DefaultMaxLogLines = 100000
	// DefaultGracefulShutdownTimeout bounds StopTool's graceful phase.
	DefaultGracefulShutdownTimeout = 10 * time.Second
	// DefaultDependencyTimeout bounds a single dependency level's readiness wait.
	DefaultDependencyTimeout = 30 * time.Second
	// DefaultDependencyPollInterval is how often readiness is polled.
	DefaultDependencyPollInterval = 500 * time.Millisecond
)

// ProcessManager owns every tool's state and is the single point of
// mutation for it (spec.md §4.7). All exported methods are safe for
// concurrent use; they serialize through mu the way spec.md §5 requires
// ("a single mutex guarding the manager").
type ProcessManager struct {
	mu sync.Mutex

	log *zap.Logger

	tools        []*ToolState
	virtualIdx   map[int]bool
	configPath   string
	maxLogLines  int
	isShutDown   bool
	recentlyStop map[int]bool

	bus *pubsub.Bus

	gracefulShutdownTimeout time.Duration
	dependencyTimeout       time.Duration
	dependencyPollInterval  time.Duration
}

// New constructs a ProcessManager. maxLogLines <= 0 selects
// DefaultMaxLogLines. A nil logger selects zap.NewNop(), matching the
// teacher's own tolerance for a nil-safe default seen in ui.UI's
// constructor pattern.
func New(configPath string, maxLogLines int, log *zap.Logger) *ProcessManager {
	if maxLogLines <= 0 {
		maxLogLines = DefaultMaxLogLines
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessManager{
		log:                     log,
		virtualIdx:              make(map[int]bool),
		configPath:              configPath,
		maxLogLines:             maxLogLines,
		recentlyStop:            make(map[int]bool),
		bus:                     pubsub.New(),
		gracefulShutdownTimeout: DefaultGracefulShutdownTimeout,
		dependencyTimeout:       DefaultDependencyTimeout,
		dependencyPollInterval:  DefaultDependencyPollInterval,
	}
}

// ConfigPath returns the configuration path this manager was constructed
// or last reloaded with.
func (m *ProcessManager) ConfigPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configPath
}

// Initialize seeds the manager with one stopped ToolState per config,
// first reaping any orphaned processes left behind by a prior session
// against the same configuration path (spec.md §4.7 "Orphan reaping").
func (m *ProcessManager) Initialize(configs []ToolConfig) []Snapshot {
	m.mu.Lock()
	reg := pidregistry.New(m.configPath)
	m.mu.Unlock()

	reapOrphans(reg, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tools = make([]*ToolState, 0, len(configs))
	for _, c := range configs {
		instanceID := uuid.New()
		m.tools = append(m.tools, &ToolState{
			Config:     c,
			Status:     StatusStopped,
			instanceID: instanceID,
		})
		m.log.Info("tool configured", zap.String("tool", c.Name), zap.String("instanceID", instanceID.String()))
	}
	return m.snapshotAllLocked()
}

// reapOrphans loads the persisted PID registry and, for every live
// entry, force/gracefully kills it before any new child is spawned, so
// stale listeners are not competing for ports (spec.md §4.7).
func reapOrphans(reg *pidregistry.Registry, log *zap.Logger) {
	data, ok := reg.Load()
	if !ok || data == nil {
		return
	}
	for _, entry := range data.Processes {
		wasRunning := procutil.IsProcessRunning(entry.PID)
		if wasRunning {
			procutil.KillProcessGracefully(entry.PID, procutil.DefaultGracefulTimeout)
		}
		log.Info("reaped orphan from prior session",
			zap.String("tool", entry.ToolName),
			zap.Int("pid", entry.PID),
			zap.Bool("wasRunning", wasRunning),
		)
	}
	if err := reg.Delete(); err != nil {
		log.Warn("failed deleting pid file after orphan reap", zap.Error(err))
	}
}

// GetTool returns a read-only snapshot of tool i, or (Snapshot{}, false)
// for an invalid index.
func (m *ProcessManager) GetTool(i int) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.tools) {
		return Snapshot{}, false
	}
	return m.tools[i].snapshot(), true
}

// GetTools returns a read-only snapshot of every tool, in index order.
func (m *ProcessManager) GetTools() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotAllLocked()
}

func (m *ProcessManager) snapshotAllLocked() []Snapshot {
	out := make([]Snapshot, len(m.tools))
	for i, t := range m.tools {
		out[i] = t.snapshot()
	}
	return out
}

// GetToolByName performs a linear scan for a tool with the given name,
// since HTTP clients address tools by name (spec.md §4.8 — "indices
// shift on reload").
func (m *ProcessManager) GetToolByName(name string) (int, Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tools {
		if t.Config.Name == name {
			return i, t.snapshot(), true
		}
	}
	return -1, Snapshot{}, false
}

// ToolLogs returns a copy of tool i's captured log lines.
func (m *ProcessManager) ToolLogs(i int) ([]LogLine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.tools) {
		return nil, false
	}
	out := make([]LogLine, len(m.tools[i].Logs))
	copy(out, m.tools[i].Logs)
	return out, true
}

// Subscribe registers cb under pubsub.AllKey or a specific tool index.
func (m *ProcessManager) Subscribe(key int, cb pubsub.Callback) pubsub.Unsubscribe {
	return m.bus.Subscribe(key, cb)
}

// CreateVirtualTool appends a perpetually-running, process-less tool
// (spec.md §3 "Virtual tools") and returns its index.
func (m *ProcessManager) CreateVirtualTool(name string) int {
	m.mu.Lock()
	idx := len(m.tools)
	instanceID := uuid.New()
	m.tools = append(m.tools, &ToolState{
		Config:     ToolConfig{Name: name},
		Status:     StatusRunning,
		IsVirtual:  true,
		instanceID: instanceID,
	})
	m.virtualIdx[idx] = true
	m.mu.Unlock()

	m.log.Info("virtual tool created", zap.String("tool", name), zap.String("instanceID", instanceID.String()))
	m.bus.Publish(idx)
	return idx
}

// AddLogToTool appends a single plain-text LogLine to tool i (spec.md
// §4.7), used by the HTTP API to narrate its own request stream through
// its virtual tool.
func (m *ProcessManager) AddLogToTool(i int, message string) {
	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	m.appendLineLocked(i, LogLine{Segments: []TextSegment{{Text: message}}})
	m.mu.Unlock()

	m.bus.Publish(i)
}

// ClearLogs truncates tool i's log ring to empty and bumps logVersion.
func (m *ProcessManager) ClearLogs(i int) {
	m.mu.Lock()
	if i < 0 || i >= len(m.tools) {
		m.mu.Unlock()
		return
	}
	t := m.tools[i]
	t.Logs = nil
	t.LogVersion++
	m.mu.Unlock()

	m.bus.Publish(i)
}

// appendLineLocked appends line and evicts from the front if the cap is
// exceeded; in-place replacement is replaceLastLineLocked's job. mu must
// already be held. Returns nothing; callers publish after releasing the
// lock.
func (m *ProcessManager) appendLineLocked(i int, line LogLine) {
	t := m.tools[i]
	t.LogVersion++
	line.Seq = t.LogVersion

	t.Logs = append(t.Logs, line)
	if over := len(t.Logs) - m.maxLogLines; over > 0 {
		t.Logs = t.Logs[over:]
		t.LogTrimCount += uint64(over)
	}
}

// replaceLastLineLocked overwrites the most recently appended line, or
// appends if the ring is currently empty (there is nothing to replace).
// mu must already be held.
func (m *ProcessManager) replaceLastLineLocked(i int, line LogLine) {
	t := m.tools[i]
	t.LogVersion++
	line.Seq = t.LogVersion

	if len(t.Logs) == 0 {
		t.Logs = append(t.Logs, line)
		return
	}
	t.Logs[len(t.Logs)-1] = line
}
