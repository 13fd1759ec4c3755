package system

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/riftlabs/vpsagent/internal/sshexec"
	"github.com/riftlabs/vpsagent/internal/tools"
)

// Alert is one threshold breach surfaced by Metrics.
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// MonitorSnapshot is the parsed result of the monitor endpoint's fixed
// composite remote command.
type MonitorSnapshot struct {
	CPULoad        float64 `json:"cpuLoad"`
	MemUsedPct     float64 `json:"memUsedPct"`
	DiskUsedPct    float64 `json:"diskUsedPct"`
	ContainerCount int     `json:"containerCount"`
	Alerts         []Alert `json:"alerts"`
}

const (
	memAlertThresholdPct  = 90.0
	diskAlertThresholdPct = 90.0
)

var (
	loadAvgRe   = regexp.MustCompile(`load average:\s*([\d.]+)`)
	memLineRe   = regexp.MustCompile(`Mem:\s+(\d+)\s+(\d+)`)
	diskLineRe  = regexp.MustCompile(`(\d+)%`)
)

// Metrics runs the fixed composite command (uptime, free -m, df -h /,
// docker ps -q | wc -l) over the SSH Executor and parses it into a
// MonitorSnapshot, evaluating fixed alert thresholds.
func Metrics(ctx context.Context, sess *tools.Session) (*MonitorSnapshot, error) {
	command := "uptime; echo '---'; free -m; echo '---'; df -h /; echo '---'; docker ps -q 2>/dev/null | wc -l"
	result, err := sshexec.Exec(sess.Conn, command, defaultTimeout)
	if err != nil {
		return nil, err
	}

	sections := strings.Split(result.Stdout, "---")
	if len(sections) < 4 {
		return nil, fmt.Errorf("system: unexpected monitor output shape")
	}

	snap := &MonitorSnapshot{}

	if m := loadAvgRe.FindStringSubmatch(sections[0]); len(m) == 2 {
		snap.CPULoad, _ = strconv.ParseFloat(m[1], 64)
	}

	if m := memLineRe.FindStringSubmatch(sections[1]); len(m) == 3 {
		total, _ := strconv.ParseFloat(m[1], 64)
		used, _ := strconv.ParseFloat(m[2], 64)
		if total > 0 {
			snap.MemUsedPct = used / total * 100
		}
	}

	if m := diskLineRe.FindStringSubmatch(sections[2]); len(m) == 2 {
		snap.DiskUsedPct, _ = strconv.ParseFloat(m[1], 64)
	}

	snap.ContainerCount, _ = strconv.Atoi(strings.TrimSpace(sections[3]))

	if snap.MemUsedPct > memAlertThresholdPct {
		snap.Alerts = append(snap.Alerts, Alert{Level: "critical", Message: fmt.Sprintf("memory usage at %.1f%%", snap.MemUsedPct)})
	}
	if snap.DiskUsedPct > diskAlertThresholdPct {
		snap.Alerts = append(snap.Alerts, Alert{Level: "critical", Message: fmt.Sprintf("disk usage at %.1f%%", snap.DiskUsedPct)})
	}

	return snap, nil
}
