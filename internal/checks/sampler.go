package checks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultProcRoot  = "/proc"
	DefaultDiskPath  = "/"
	defaultCPUWindow = 200 * time.Millisecond
)

// ProcSampler reads host resource usage from a procfs mount and statfs.
// CPU usage is the busy share between two readings of <root>/stat: the previous Sample and this one,
// or, on the first Sample, two readings taken a short window apart.
type ProcSampler struct {
	root      string
	diskPath  string
	cpuWindow time.Duration

	mu   sync.Mutex
	prev *cpuTimes
}

type cpuTimes struct {
	idle  uint64
	total uint64
}

// NewProcSampler creates a sampler rooted at root (usually /proc) that reports disk usage for diskPath.
func NewProcSampler(root string, diskPath string) *ProcSampler {
	if strings.TrimSpace(root) == "" {
		root = DefaultProcRoot
	}
	if strings.TrimSpace(diskPath) == "" {
		diskPath = DefaultDiskPath
	}
	return &ProcSampler{
		root:      root,
		diskPath:  diskPath,
		cpuWindow: defaultCPUWindow,
	}
}

// Sample implements Sampler.
func (p *ProcSampler) Sample(ctx context.Context) (ResourceSample, error) {
	cpu, err := p.cpuPercent(ctx)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("cpu: %w", err)
	}

	mem, err := readMemoryPercent(p.root)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("memory: %w", err)
	}

	disk, err := diskUsedPercent(p.diskPath)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("disk: %w", err)
	}

	conns, err := countConnections(p.root)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("network connections: %w", err)
	}

	procs, err := countProcesses(p.root)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("processes: %w", err)
	}

	load, err := readLoadAverage(p.root)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("load average: %w", err)
	}

	return ResourceSample{
		CPUPercent:         cpu,
		MemoryPercent:      mem,
		DiskUsedPercent:    disk,
		NetworkConnections: float64(conns),
		ProcessCount:       float64(procs),
		LoadAverage1m:      load,
	}, nil
}

func (p *ProcSampler) cpuPercent(ctx context.Context) (float64, error) {
	p.mu.Lock()
	prev := p.prev
	p.mu.Unlock()

	if prev == nil {
		first, err := readCPUTimes(p.root)
		if err != nil {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(p.cpuWindow):
		}
		prev = &first
	}

	current, err := readCPUTimes(p.root)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.prev = &current
	p.mu.Unlock()

	return busyPercent(*prev, current), nil
}

func busyPercent(prev cpuTimes, current cpuTimes) float64 {
	if current.total <= prev.total {
		return 0
	}
	total := float64(current.total - prev.total)
	idle := float64(0)
	if current.idle > prev.idle {
		idle = float64(current.idle - prev.idle)
	}
	return max(0, min(100, 100*(1-idle/total)))
}

// readCPUTimes parses the aggregate "cpu" line of <root>/stat.
func readCPUTimes(root string) (cpuTimes, error) {
	f, err := os.Open(filepath.Join(root, "stat"))
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}

		// user nice system idle iowait irq softirq steal; guest time is already counted in user.
		var t cpuTimes
		for i, raw := range fields[1:min(len(fields), 9)] {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parsing cpu field %d: %w", i, err)
			}
			t.total += v
			if i == 3 || i == 4 {
				t.idle += v
			}
		}
		return t, nil
	}
	if err := scanner.Err(); err != nil {
		return cpuTimes{}, err
	}

	return cpuTimes{}, errors.New("aggregate cpu line not found")
}

// readMemoryPercent returns the used share of memory from <root>/meminfo.
func readMemoryPercent(root string) (float64, error) {
	f, err := os.Open(filepath.Join(root, "meminfo"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	values := map[string]float64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		values[key] = v
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	total := values["MemTotal"]
	if total <= 0 {
		return 0, errors.New("MemTotal not found")
	}
	available, ok := values["MemAvailable"]
	if !ok {
		available = values["MemFree"] + values["Buffers"] + values["Cached"]
	}

	return max(0, min(100, 100*(1-available/total))), nil
}

// countConnections counts socket table entries in <root>/net/{tcp,tcp6,udp,udp6}.
func countConnections(root string) (int, error) {
	total := 0
	found := 0
	for _, name := range []string{"tcp", "tcp6", "udp", "udp6"} {
		n, err := countTableRows(filepath.Join(root, "net", name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		found++
		total += n
	}
	if found == 0 {
		return 0, errors.New("no socket tables found")
	}
	return total, nil
}

// countTableRows counts the non-empty lines after the header line.
func countTableRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	header := true
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n, scanner.Err()
}

// countProcesses counts the numeric directories directly under root.
func countProcesses(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err == nil {
			n++
		}
	}
	return n, nil
}

// readLoadAverage returns the 1-minute load average from <root>/loadavg.
func readLoadAverage(root string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(root, "loadavg"))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, errors.New("empty loadavg")
	}
	return strconv.ParseFloat(fields[0], 64)
}
