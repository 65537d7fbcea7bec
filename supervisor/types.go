// Package supervisor is corral's ProcessManager: it owns every tool's
// state, spawns and reaps child processes, ingests their log output,
// and fans out every mutation through a pubsub.Bus (spec.md §4.7). It is
// the core this whole module exists to serve; every other package here
// either feeds it (procutil, pidregistry, ansiseg, linereader, depgraph)
// or consumes it (controlapi, cmd).
package supervisor

import (
	"errors"
	"os/exec"
	"time"

	"github.com/arctir/corral/ansiseg"
	"github.com/google/uuid"
)

// Sentinel errors callers are expected to branch on (spec.md §7).
var (
	ErrToolNotFound       = errors.New("supervisor: tool not found")
	ErrToolAlreadyRunning = errors.New("supervisor: tool already running")
	ErrNoConfigPath       = errors.New("supervisor: no configuration path available")
	ErrEmptyConfig        = errors.New("supervisor: configuration declares no tools")
)

// Status is the lifecycle state of a ToolState.
type Status string

const (
	StatusStopped      Status = "stopped"
	StatusWaiting      Status = "waiting"
	StatusRunning      Status = "running"
	StatusShuttingDown Status = "shuttingDown"
	StatusError        Status = "error"
)

// ToolConfig is immutable, parsed input describing one managed tool
// (spec.md §3).
type ToolConfig struct {
	Name        string
	Command     string
	Args        []string
	Cwd         string
	Env         map[string]string
	Cleanup     []string
	DependsOn   []string
	Description string
}

// namedConfig adapts ToolConfig to depgraph.Named; a plain method named
// DependsOn on ToolConfig itself would collide with the DependsOn field.
type namedConfig struct{ ToolConfig }

func (n namedConfig) ToolName() string    { return n.ToolConfig.Name }
func (n namedConfig) DependsOn() []string { return n.ToolConfig.DependsOn }

// TextSegment mirrors ansiseg.TextSegment; re-exported here so consumers
// of supervisor need not import ansiseg directly.
type TextSegment = ansiseg.TextSegment

// LogLine is one line of captured output (spec.md §3).
type LogLine struct {
	Segments []TextSegment
	IsStderr bool
	// Seq is the tool's logVersion at the moment this line was appended
	// or last replaced-in-place (SPEC_FULL.md §3); it lets a client that
	// cached an index tell whether the line there has since changed.
	Seq uint64
}

// ToolState is the mutable, observable state of one managed tool
// (spec.md §3). External readers must treat values returned by
// GetTool/GetTools as read-only snapshots.
type ToolState struct {
	Config ToolConfig

	process   *exec.Cmd
	PID       int
	StartTime time.Time
	isRunning bool

	Status   Status
	ExitCode *int

	Logs         []LogLine
	LogTrimCount uint64
	LogVersion   uint64

	IsVirtual  bool
	instanceID uuid.UUID
}

// HasProcess reports whether this tool currently owns a live child
// handle, i.e. whether PID/StartTime are populated (spec.md §3
// invariant: "pid and startTime are present exactly when process is
// present").
func (t *ToolState) HasProcess() bool { return t.isRunning }

// InstanceID returns the tool's identity token, assigned fresh whenever
// Initialize, CreateVirtualTool or Reload builds a ToolState; a virtual
// tool keeps its ToolState, and so its token, across a Reload. It is stamped onto every
// spawn/exit/configure zap log line so a log aggregator can correlate
// entries for one running instance even though the tool's slice index
// and name are reused across a reload; spec.md never requires it and no
// invariant depends on it.
func (t *ToolState) InstanceID() uuid.UUID { return t.instanceID }

// Snapshot is a read-only, deep-enough-to-be-safe copy of a ToolState
// for callers that must not alias live manager state (e.g. the HTTP API,
// a future Renderer implementation per SPEC_FULL.md §6).
type Snapshot struct {
	Config       ToolConfig
	PID          int
	StartTime    time.Time
	Status       Status
	ExitCode     *int
	LogCount     int
	LogTrimCount uint64
	LogVersion   uint64
	IsVirtual    bool
}

func (t *ToolState) snapshot() Snapshot {
	var exitCode *int
	if t.ExitCode != nil {
		ec := *t.ExitCode
		exitCode = &ec
	}
	return Snapshot{
		Config:       t.Config,
		PID:          t.PID,
		StartTime:    t.StartTime,
		Status:       t.Status,
		ExitCode:     exitCode,
		LogCount:     len(t.Logs),
		LogTrimCount: t.LogTrimCount,
		LogVersion:   t.LogVersion,
		IsVirtual:    t.IsVirtual,
	}
}

// Renderer is implemented by the external terminal UI (spec.md §1's
// "Out of scope" line; SPEC_FULL.md §6). corral's core never implements
// it and no production code path in this repository references it; it
// is declared purely so the core's Subscription Bus has a documented,
// real consumption point to hand snapshots to.
type Renderer interface {
	OnToolChanged(index int, tool Snapshot)
}
