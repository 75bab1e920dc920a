package addrspace

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// Process reads the memory of a stopped live process through
// /proc/<pid>/mem. The caller is responsible for stopping the process
// (for example with ptrace or SIGSTOP) before reading.
type Process struct {
	PID  int
	mem  *os.File
	maps []Mapping
}

// OpenProcess opens the memory of process pid. If writable is true the
// memory file is opened for writing as well.
func OpenProcess(pid int, writable bool) (*Process, error) {
	maps, err := readProcMaps(pid)
	if err != nil {
		return nil, err
	}
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), flag, 0)
	if err != nil {
		return nil, fmt.Errorf("addrspace: open process %d: %w", pid, err)
	}
	return &Process{PID: pid, mem: mem, maps: maps}, nil
}

// Close releases the memory file.
func (p *Process) Close() error {
	return p.mem.Close()
}

// Mappings returns the process mappings in address order.
func (p *Process) Mappings() []Mapping { return p.maps }

func (p *Process) mapped(addr uint64, n int, write bool) bool {
	if addr > 1<<63-1 {
		return false
	}
	m, ok := findMapping(p.maps, addr)
	if !ok || (write && !m.Writable) || (!write && !m.Readable) {
		return false
	}
	return uint64(n) <= m.End-addr
}

// ReadAt implements Source.
func (p *Process) ReadAt(buf []byte, addr uint64) error {
	if !p.mapped(addr, len(buf), false) {
		return unmapped("read", addr, len(buf))
	}
	if _, err := p.mem.ReadAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("%w: %v", unmapped("read", addr, len(buf)), err)
	}
	return nil
}

// WriteAt implements Source.
func (p *Process) WriteAt(buf []byte, addr uint64) error {
	if !p.mapped(addr, len(buf), true) {
		return unmapped("write", addr, len(buf))
	}
	if _, err := p.mem.WriteAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("%w: %v", unmapped("write", addr, len(buf)), err)
	}
	return nil
}

func readProcMaps(pid int) ([]Mapping, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("addrspace: open maps for %d: %w", pid, err)
	}
	defer f.Close()

	var maps []Mapping
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m, err := parseMapsLine(sc.Text())
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("addrspace: read maps for %d: %w", pid, err)
	}
	sort.Slice(maps, func(i, j int) bool { return maps[i].Start < maps[j].Start })
	return maps, nil
}
