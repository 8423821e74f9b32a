//go:build linux

package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/searchktools/fast-static/core/observability"
	"github.com/searchktools/fast-static/core/pools"
)

// Stats is a snapshot of engine counters and pool statistics
type Stats struct {
	Active   int64  `json:"active"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Evicted  uint64 `json:"evicted"`
	Closed   uint64 `json:"closed"`

	Workers    pools.WorkerPoolStats     `json:"workers"`
	Connection pools.ConnectionPoolStats `json:"connection_pool"`
	BytePool   pools.BytePoolStats       `json:"byte_pool"`

	Responses []observability.StatusSnapshot `json:"responses"`
}

// Stats returns current statistics. It is safe to call from any goroutine.
func (e *Engine) Stats() Stats {
	stats := Stats{
		Active:     e.stats.active.Load(),
		Accepted:   e.stats.accepted.Load(),
		Rejected:   e.stats.rejected.Load(),
		Evicted:    e.stats.evicted.Load(),
		Closed:     e.stats.closed.Load(),
		Connection: e.connPool.Stats(),
		BytePool:   pools.GlobalBytePoolStats(),
		Responses:  e.monitor.Snapshot(),
	}
	if e.workers != nil {
		stats.Workers = e.workers.Stats()
	}
	return stats
}

// StatsJSON returns statistics as an indented JSON string
func (e *Engine) StatsJSON() string {
	data, _ := json.MarshalIndent(e.Stats(), "", "  ")
	return string(data)
}

// StatsText returns statistics as human-readable text
func (e *Engine) StatsText() string {
	s := e.Stats()
	return fmt.Sprintf(`Engine Statistics
=================

Connections:
  Active:   %d
  Accepted: %d
  Rejected: %d
  Evicted:  %d
  Closed:   %d

Worker Pool:
  Workers:   %d
  Submitted: %d
  Completed: %d
  Failed:    %d
  Yields:    %d

Connection Pool:
  Gets:     %d
  Hit Rate: %.2f%%

Responses:
%s`,
		s.Active, s.Accepted, s.Rejected, s.Evicted, s.Closed,
		s.Workers.NumWorkers, s.Workers.TasksSubmitted, s.Workers.TasksCompleted,
		s.Workers.TasksFailed, s.Workers.Yields,
		s.Connection.Gets, s.Connection.HitRate*100,
		responsesText(s.Responses),
	)
}

func responsesText(snaps []observability.StatusSnapshot) string {
	if len(snaps) == 0 {
		return "  none\n"
	}
	var b strings.Builder
	for _, s := range snaps {
		fmt.Fprintf(&b, "  %d: %d (avg %v, max %v)\n", s.Code, s.Count, s.Avg, s.Max)
	}
	return b.String()
}
