package inventory

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// tcpStates is the kernel TCP state vocabulary, in /proc/net/tcp order.
var tcpStates = []string{
	"ESTABLISHED",
	"SYN_SENT",
	"SYN_RECV",
	"FIN_WAIT1",
	"FIN_WAIT2",
	"TIME_WAIT",
	"CLOSE",
	"CLOSE_WAIT",
	"LAST_ACK",
	"LISTEN",
	"CLOSING",
}

// KnownTCPStates returns the kernel TCP state vocabulary. The returned
// slice is a copy and safe to modify.
func KnownTCPStates() []string {
	states := make([]string, len(tcpStates))
	copy(states, tcpStates)
	return states
}

// Connection is one live TCP connection as reported by the OS. Pid is nil
// for sockets the kernel owns without a visible process (or when the
// owning process cannot be determined). Records are produced fresh per
// snapshot and never mutated afterwards.
type Connection struct {
	Pid         *int32 `json:"pid"`
	ProcessName string `json:"process_name,omitempty"`
	LocalAddr   string `json:"local_address"`
	LocalPort   uint32 `json:"local_port"`
	RemoteAddr  string `json:"remote_address"`
	RemotePort  uint32 `json:"remote_port"`
	State       string `json:"state"`
	Protocol    string `json:"protocol"`
}

// RemoteEndpoint renders the connection's remote side as "ip:port", or ""
// when no remote address is present.
func (c Connection) RemoteEndpoint() string {
	if c.RemoteAddr == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.RemoteAddr, c.RemotePort)
}

// ProcessInfo is a point-in-time summary of one process. ConnectionCount
// is only populated when the caller asked for it.
type ProcessInfo struct {
	Pid             int32   `json:"pid"`
	Name            string  `json:"name"`
	Cmdline         string  `json:"cmdline"`
	Username        string  `json:"username"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	ConnectionCount *int    `json:"connection_count,omitempty"`
}

// Seams for tests.
var (
	netConnections = net.Connections
	newProcess     = process.NewProcess
	allProcesses   = process.Processes
)

const cmdlineLimit = 200

// Provider takes point-in-time snapshots of live OS connection and
// process state. Every snapshot call reads the OS afresh; nothing is
// cached between calls.
type Provider struct {
	logger zerolog.Logger
}

// NewProvider creates a Provider with a component-scoped logger.
func NewProvider() *Provider {
	return &Provider{
		logger: log.With().Str("component", "inventory").Logger(),
	}
}

// Connections returns a snapshot of live TCP connections. Permission or
// enumeration failures degrade to an empty snapshot with a warning log;
// they are never surfaced as errors to callers.
func (p *Provider) Connections() []Connection {
	stats, err := netConnections("tcp")
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to enumerate TCP connections, returning empty snapshot")
		return nil
	}

	names := make(map[int32]string)
	conns := make([]Connection, 0, len(stats))
	for _, stat := range stats {
		conn := Connection{
			LocalAddr:  stat.Laddr.IP,
			LocalPort:  stat.Laddr.Port,
			RemoteAddr: stat.Raddr.IP,
			RemotePort: stat.Raddr.Port,
			State:      stat.Status,
			Protocol:   "tcp",
		}
		if stat.Pid > 0 {
			pid := stat.Pid
			conn.Pid = &pid
			conn.ProcessName = p.processName(pid, names)
		}
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionsForPid returns the subset of the current snapshot owned by
// the given pid.
func (p *Provider) ConnectionsForPid(pid int32) []Connection {
	var owned []Connection
	for _, conn := range p.Connections() {
		if conn.Pid != nil && *conn.Pid == pid {
			owned = append(owned, conn)
		}
	}
	return owned
}

// processName resolves a pid to a process name, caching per snapshot.
// Unresolvable pids (exited process, insufficient permission) map to
// "unknown".
func (p *Provider) processName(pid int32, cache map[int32]string) string {
	if name, ok := cache[pid]; ok {
		return name
	}
	name := "unknown"
	if proc, err := newProcess(pid); err == nil {
		if n, err := proc.Name(); err == nil && n != "" {
			name = n
		}
	}
	cache[pid] = name
	return name
}

// Processes returns a snapshot of running processes, optionally filtered
// by a case-insensitive name substring. When withConnections is true each
// entry carries its TCP connection count. Processes that disappear during
// enumeration are skipped.
func (p *Provider) Processes(nameFilter string, withConnections bool) []ProcessInfo {
	procs, err := allProcesses()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to enumerate processes, returning empty snapshot")
		return nil
	}

	var counts map[int32]int
	if withConnections {
		counts = make(map[int32]int)
		for _, conn := range p.Connections() {
			if conn.Pid != nil {
				counts[*conn.Pid]++
			}
		}
	}

	filter := strings.ToLower(nameFilter)
	infos := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		info := p.describe(proc, name)
		if withConnections {
			count := counts[proc.Pid]
			info.ConnectionCount = &count
		}
		infos = append(infos, info)
	}
	return infos
}

// Process returns the summary for a single pid, or an error when no such
// process exists.
func (p *Provider) Process(pid int32) (*ProcessInfo, error) {
	proc, err := newProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	name, err := proc.Name()
	if err != nil {
		name = "unknown"
	}
	info := p.describe(proc, name)
	return &info, nil
}

// describe collects best-effort process metadata. Individual field
// failures degrade to zero values rather than failing the whole record.
func (p *Provider) describe(proc *process.Process, name string) ProcessInfo {
	info := ProcessInfo{
		Pid:  proc.Pid,
		Name: name,
	}
	if cmdline, err := proc.Cmdline(); err == nil {
		if len(cmdline) > cmdlineLimit {
			cmdline = cmdline[:cmdlineLimit]
		}
		info.Cmdline = cmdline
	}
	if username, err := proc.Username(); err == nil {
		info.Username = username
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := proc.MemoryPercent(); err == nil {
		info.MemoryPercent = math.Round(float64(mem)*100) / 100
	}
	return info
}
