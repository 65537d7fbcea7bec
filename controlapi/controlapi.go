// Package controlapi is corral's HTTP Control API (spec.md §4.8): a thin
// JSON server, bound to localhost, fronting a supervisor.ProcessManager.
// Grounded on the teacher's own http.HandleFunc/http.ListenAndServe
// mux in ui/ui.go, the one HTTP server in the retrieved example pack
// with this traffic shape; unlike ui.ui's HTML templates, every route
// here answers in the envelope this package defines.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arctir/corral/config"
	"github.com/arctir/corral/supervisor"
	"go.uber.org/zap"
)

// DefaultBindAddr is the loopback address this server listens on; the
// port is supplied separately (spec.md §6 "HTTP surface").
const DefaultBindAddr = "127.0.0.1"

// ReloadFunc is invoked after a successful Reload with the freshly
// parsed configuration, letting the host (e.g. cmd's `corral run`)
// react to a changed port or theme. May be nil.
type ReloadFunc func(cfg config.Config)

// Server is corral's Control API. It is safe to construct once per
// running supervisor instance.
type Server struct {
	manager     *supervisor.ProcessManager
	log         *zap.Logger
	apiToolIdx  int
	apiToolName string
	configPath  string
	onReload    ReloadFunc
	httpServer  *http.Server
}

// New builds a Server fronting manager; ListenAndServe binds it to an
// address. It creates
// (or reuses, if already present) a virtual tool named apiToolName for
// its own request log (spec.md §4.8).
func New(manager *supervisor.ProcessManager, log *zap.Logger, configPath, apiToolName string, onReload ReloadFunc) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if apiToolName == "" {
		apiToolName = "MCP API"
	}

	idx, _, ok := manager.GetToolByName(apiToolName)
	if !ok {
		idx = manager.CreateVirtualTool(apiToolName)
	}

	return &Server{
		manager:    manager,
		log:        log,
		apiToolIdx: idx,
		apiToolName: apiToolName,
		configPath: configPath,
		onReload:   onReload,
	}
}

// ListenAndServe starts the server on addr (e.g. "127.0.0.1:18765") and
// blocks until it stops, matching the ui package's blocking
// http.ListenAndServe call style.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.wrap(s.handleNotFound))
	mux.HandleFunc("/api/health", s.wrap(s.handleHealth))
	mux.HandleFunc("/api/reload", s.wrap(s.handleReload))
	mux.HandleFunc("/api/processes", s.wrap(s.handleProcesses))
	mux.HandleFunc("/api/processes/", s.wrap(s.handleProcessSubroute))

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	s.log.Info("control API listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server if it is running.
func (s *Server) Shutdown() {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
}

// wrap appends a request-narrating log line to the API's virtual tool
// and sets the CORS header common to every response (spec.md §4.8).
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		// Look the tool up by name: Reload re-appends virtual tools at new indices.
		idx := s.apiToolIdx
		if i, _, ok := s.manager.GetToolByName(s.apiToolName); ok {
			idx = i
		}
		s.manager.AddLogToTool(idx, fmt.Sprintf("%s %s %s", time.Now().Format("15:04:05"), r.Method, r.URL.Path))

		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("%v", rec))
			}
		}()

		h(w, r)
	}
}

type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data"`
	Error string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: false, Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleNotFound answers every path this server does not recognize with
// a JSON 404, since the ServeMux would otherwise fall back to a plain
// text response (spec.md §4.8: "404 on any other path").
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// processSummary is the shape returned by /api/processes (spec.md §4.8).
type processSummary struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	ExitCode      *int   `json:"exitCode"`
	LogCount      int    `json:"logCount"`
	PID           int    `json:"pid"`
	UptimeMillis  int64  `json:"uptimeMillis"`
}

func toSummary(s supervisor.Snapshot) processSummary {
	var uptime int64
	if s.Status == supervisor.StatusRunning && !s.StartTime.IsZero() {
		uptime = time.Since(s.StartTime).Milliseconds()
	}
	return processSummary{
		Name:         s.Config.Name,
		Description:  s.Config.Description,
		Status:       string(s.Status),
		ExitCode:     s.ExitCode,
		LogCount:     s.LogCount,
		PID:          s.PID,
		UptimeMillis: uptime,
	}
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	snaps := s.manager.GetTools()
	out := make([]processSummary, 0, len(snaps))
	for _, snap := range snaps {
		if snap.IsVirtual {
			continue
		}
		out = append(out, toSummary(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

// processDetail extends processSummary with invocation details for the
// single-process route.
type processDetail struct {
	processSummary
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

// handleProcessSubroute dispatches every path beneath /api/processes/
// to the name-addressed sub-handlers (spec.md: "Tool lookup is always
// by name").
func (s *Server) handleProcessSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/processes/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	segments := strings.Split(strings.Trim(rest, "/"), "/")
	name := segments[0]
	action := ""
	if len(segments) > 1 {
		action = segments[1]
	}

	idx, snap, ok := s.manager.GetToolByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no such process: %s", name))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, processDetail{
			processSummary: toSummary(snap),
			Command:        snap.Config.Command,
			Args:           snap.Config.Args,
			Cwd:            snap.Config.Cwd,
		})
	case action == "logs" && r.Method == http.MethodGet:
		s.handleLogs(w, r, idx)
	case action == "stop" && r.Method == http.MethodPost:
		s.handleStop(w, idx, snap)
	case action == "restart" && r.Method == http.MethodPost:
		s.manager.RestartTool(idx)
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case action == "clear" && r.Method == http.MethodPost:
		s.manager.ClearLogs(idx)
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleStop(w http.ResponseWriter, idx int, snap supervisor.Snapshot) {
	if snap.Status != supervisor.StatusRunning {
		writeError(w, http.StatusBadRequest, "process is not running")
		return
	}
	s.manager.StopTool(idx)
	writeJSON(w, http.StatusOK, map[string]string{"name": snap.Config.Name})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, idx int) {
	lines, ok := s.manager.ToolLogs(idx)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = joinSegments(l.Segments)
	}

	q := r.URL.Query()
	if search := q.Get("search"); search != "" {
		texts = filterLines(texts, search, q.Get("searchType"))
	}

	if n, err := strconv.Atoi(q.Get("lines")); err == nil && n > 0 && n < len(texts) {
		texts = texts[len(texts)-n:]
	}

	writeJSON(w, http.StatusOK, texts)
}

func joinSegments(segs []supervisor.TextSegment) string {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// filterLines applies a substring or subsequence ("fuzzy") match,
// preserving source order either way (spec.md §9: scoring is out of
// scope for the fuzzy variant).
func filterLines(lines []string, query, searchType string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		match := false
		switch searchType {
		case "fuzzy":
			match = isSubsequence(query, l)
		default:
			match = strings.Contains(l, query)
		}
		if match {
			out = append(out, l)
		}
	}
	return out
}

// isSubsequence reports whether every rune of query appears in text, in
// order, not necessarily contiguously. Case-insensitive, matching how a
// human would eyeball a fuzzy filter.
func isSubsequence(query, text string) bool {
	q := []rune(strings.ToLower(query))
	t := []rune(strings.ToLower(text))
	qi := 0
	for _, r := range t {
		if qi >= len(q) {
			break
		}
		if r == q[qi] {
			qi++
		}
	}
	return qi == len(q)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snaps, err := s.manager.Reload(cfg.Tools, s.configPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	names := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.IsVirtual {
			names = append(names, snap.Config.Name)
		}
	}

	if s.onReload != nil {
		s.onReload(cfg)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools":    names,
		"warnings": cfg.Warnings,
	})
}
