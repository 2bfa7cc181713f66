package driver

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ProcessTreeMemory returns the total resident memory, in bytes, of pid and all of its
// descendants. It only works where /proc is available.
func ProcessTreeMemory(pid int) (int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, fmt.Errorf("process memory is not available on this platform: %w", err)
	}
	return processTreeMemory(fs, pid)
}

func processTreeMemory(fs procfs.FS, pid int) (int, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return 0, err
	}
	children := make(map[int][]int)
	rss := make(map[int]int)
	found := false
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue // the process exited while we were scanning
		}
		children[stat.PPID] = append(children[stat.PPID], p.PID)
		rss[p.PID] = stat.ResidentMemory()
		if p.PID == pid {
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("process %d not found", pid)
	}
	total := 0
	queue := []int{pid}
	seen := map[int]bool{}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p] {
			continue
		}
		seen[p] = true
		total += rss[p]
		queue = append(queue, children[p]...)
	}
	return total, nil
}
