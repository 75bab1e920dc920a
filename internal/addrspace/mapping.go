package addrspace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mapping is one range of a live process's address space as reported by
// /proc/<pid>/maps.
type Mapping struct {
	Start, End uint64
	Readable   bool
	Writable   bool
	Path       string
}

// findMapping returns the mapping containing addr. maps must be sorted.
func findMapping(maps []Mapping, addr uint64) (Mapping, bool) {
	k := sort.Search(len(maps), func(k int) bool {
		return addr < maps[k].Start
	})
	k--
	if k >= 0 && addr < maps[k].End {
		return maps[k], true
	}
	return Mapping{}, false
}

// parseMapsLine parses "start-end perms offset dev inode [path]".
func parseMapsLine(line string) (Mapping, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Mapping{}, fmt.Errorf("addrspace: bad maps line %q", line)
	}
	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Mapping{}, fmt.Errorf("addrspace: bad maps range %q", fields[0])
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return Mapping{}, fmt.Errorf("addrspace: bad maps start %q: %w", lo, err)
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return Mapping{}, fmt.Errorf("addrspace: bad maps end %q: %w", hi, err)
	}
	perms := fields[1]
	m := Mapping{
		Start:    start,
		End:      end,
		Readable: strings.HasPrefix(perms, "r"),
		Writable: len(perms) > 1 && perms[1] == 'w',
	}
	if len(fields) >= 6 {
		m.Path = fields[5]
	}
	return m, nil
}
