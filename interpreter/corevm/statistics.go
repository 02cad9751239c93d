// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package corevm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// statisticRunner is a runner that collects statistics about the instruction
// sequence of the executed code.
type statisticRunner struct {
	mutex sync.Mutex
	stats *statistics
}

func (s *statisticRunner) run(c *context) (status, error) {
	stats := newStatistics()
	status := statusRunning
	for status == statusRunning {
		if int(c.pc) < len(c.code) {
			stats.count[OpCode(c.code[c.pc])]++
		}
		var stepErr error
		status, stepErr = step(c)
		if stepErr != nil {
			status = statusFailed
			break
		}
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stats == nil {
		s.stats = newStatistics()
	}
	s.stats.insert(stats)
	return status, nil
}

// getSummary returns a summary of the collected statistics in a
// human-readable format.
func (s *statisticRunner) getSummary() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.stats == nil {
		s.stats = newStatistics()
	}
	return s.stats.print()
}

// reset clears the collected statistics.
func (s *statisticRunner) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats = newStatistics()
}

// statistics is a simple frequency table of dispatched opcodes.
type statistics struct {
	count map[OpCode]uint64
}

func newStatistics() *statistics {
	return &statistics{count: map[OpCode]uint64{}}
}

func (s *statistics) insert(other *statistics) {
	for op, count := range other.count {
		s.count[op] += count
	}
}

func (s *statistics) print() string {
	type entry struct {
		op    OpCode
		count uint64
	}
	entries := make([]entry, 0, len(s.count))
	total := uint64(0)
	for op, count := range s.count {
		entries = append(entries, entry{op, count})
		total += count
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].count > entries[j].count
	})

	b := strings.Builder{}
	b.WriteString("----- Steps ----------\n")
	fmt.Fprintf(&b, "%-16s %12d\n", "total", total)
	for _, cur := range entries {
		fmt.Fprintf(&b, "%-16v %12d\n", cur.op, cur.count)
	}
	b.WriteString("----------------------\n")
	return b.String()
}
