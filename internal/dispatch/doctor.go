package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pterm/pterm"

	"github.com/nlsantos/devc/internal/cachedir"
)

// DoctorCheck is a single pass/fail health probe's outcome.
type DoctorCheck struct {
	Name    string `json:"name" toml:"name"`
	OK      bool   `json:"ok" toml:"ok"`
	Detail  string `json:"detail,omitempty" toml:"detail,omitempty"`
}

// DoctorReport aggregates every check doctor runs: runtime
// reachability, cache directory health, and host measurements.
type DoctorReport struct {
	Checks      []DoctorCheck          `json:"checks" toml:"checks"`
	HostCPUs    int64                  `json:"hostCPUs" toml:"host_cpus"`
	HostMemory  int64                  `json:"hostMemoryBytes" toml:"host_memory_bytes"`
	HostFreeDisk int64                 `json:"hostFreeDiskBytes" toml:"host_free_disk_bytes"`
}

// Doctor probes runtime reachability, cache directory health, and
// host-requirement measurements, recovered from
// original_source/crates/deacon/src/cli.rs's doctor subcommand (no
// teacher analog: brig has no diagnostic subcommand).
func (d *Dispatcher) Doctor(ctx context.Context, workspaceFolder string) (*DoctorReport, error) {
	report := &DoctorReport{}

	if _, err := d.Runtime.ListContainers(ctx, nil); err != nil {
		report.Checks = append(report.Checks, DoctorCheck{Name: "runtime reachable", OK: false, Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, DoctorCheck{Name: "runtime reachable", OK: true})
	}

	if root, err := cachedir.Root(); err != nil {
		report.Checks = append(report.Checks, DoctorCheck{Name: "cache directory", OK: false, Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, DoctorCheck{Name: "cache directory", OK: true, Detail: root})
	}

	if _, err := cachedir.FeaturesDir(); err != nil {
		report.Checks = append(report.Checks, DoctorCheck{Name: "features cache", OK: false, Detail: err.Error()})
	} else {
		report.Checks = append(report.Checks, DoctorCheck{Name: "features cache", OK: true})
	}

	measured := measureHost(workspaceFolder)
	report.HostCPUs = measured.LogicalCPUs
	report.HostMemory = measured.TotalMemory
	report.HostFreeDisk = measured.FreeDisk

	return report, nil
}

// RenderJSON renders the report as indented JSON, for `doctor --json`.
func (r *DoctorReport) RenderJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderTOML renders the report as TOML, the machine-readable format
// spec.md §3's "rendered as TOML" clause calls for alongside JSON.
func (r *DoctorReport) RenderTOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderText renders a human-facing pterm table plus a host summary
// line, for interactive `doctor` runs.
func (r *DoctorReport) RenderText() string {
	data := pterm.TableData{{"check", "status", "detail"}}
	for _, c := range r.Checks {
		status := pterm.FgGreen.Sprint("ok")
		if !c.OK {
			status = pterm.FgRed.Sprint("fail")
		}
		data = append(data, []string{c.Name, status, c.Detail})
	}
	table, _ := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()

	var b strings.Builder
	b.WriteString(table)
	fmt.Fprintf(&b, "\nhost: %d cpus, %s memory, %s free disk\n",
		r.HostCPUs, formatBytes(r.HostMemory), formatBytes(r.HostFreeDisk))
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
