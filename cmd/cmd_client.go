package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/arctir/corral/pidregistry"
	"github.com/olekukonko/tablewriter"
)

// apiEnvelope mirrors controlapi's response envelope; duplicated here
// rather than imported so cmd stays a pure HTTP client of a (possibly
// remote) corral instance instead of linking against its internals.
type apiEnvelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func apiBaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func apiGet(port int, path string) (apiEnvelope, error) {
	client := http.Client{Timeout: httpTimeout}
	resp, err := client.Get(apiBaseURL(port) + path)
	if err != nil {
		return apiEnvelope{}, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body)
}

func apiPost(port int, path string) (apiEnvelope, error) {
	client := http.Client{Timeout: httpTimeout}
	resp, err := client.Post(apiBaseURL(port)+path, "application/json", bytes.NewReader(nil))
	if err != nil {
		return apiEnvelope{}, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body)
}

func decodeEnvelope(r io.Reader) (apiEnvelope, error) {
	var env apiEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return apiEnvelope{}, fmt.Errorf("decoding API response: %w", err)
	}
	if !env.OK {
		return apiEnvelope{}, fmt.Errorf("API error: %s", env.Error)
	}
	return env, nil
}

// fetchLogs calls GET /api/processes/{tool}/logs against the instance
// described by configPath's project file.
func fetchLogs(configPath, tool string, lines int) ([]string, error) {
	port, err := portFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return fetchLogsAtPort(port, tool, lines)
}

// fetchLogsAtPort performs the actual HTTP round trip, split out from
// fetchLogs so it can be exercised against an httptest.Server without
// a project file on disk.
func fetchLogsAtPort(port int, tool string, lines int) ([]string, error) {
	path := "/api/processes/" + tool + "/logs"
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	env, err := apiGet(port, path)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decoding logs payload: %w", err)
	}
	return out, nil
}

// callReload calls POST /api/reload against the running instance.
func callReload(configPath string) (map[string]interface{}, error) {
	port, err := portFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return callReloadAtPort(port)
}

func callReloadAtPort(port int) (map[string]interface{}, error) {
	env, err := apiPost(port, "/api/reload")
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decoding reload payload: %w", err)
	}
	return out, nil
}

// printProcessTable renders a table of tool name/PID/command for the
// instance whose PID registry is keyed by configPath, read
// read-only the way `proctor process ls -o table` renders via
// tablewriter but without needing a live HTTP round trip.
func printProcessTable(configPath string) {
	reg := pidregistry.New(configPath)
	data, ok := reg.Load()
	if !ok || data == nil || len(data.Processes) == 0 {
		fmt.Println("no running processes found for this configuration")
		return
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"name", "pid", "uptime", "command"})
	for _, e := range data.Processes {
		uptime := time.Since(time.UnixMilli(e.StartTime)).Round(time.Second).String()
		table.Append([]string{
			e.ToolName,
			strconv.Itoa(e.PID),
			uptime,
			e.Command,
		})
	}
	table.Render()
	fmt.Print(buf.String())
}
