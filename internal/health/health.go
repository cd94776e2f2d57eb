// Package health tracks whether each enumeration source (a registry root, a
// Startup folder, a system source) was readable on its last pass.
package health

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sysview/sysview/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a source.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Check stores the latest result for a named source.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Monitor tracks checks for multiple sources. A nil *Monitor discards
// updates, so enumerators can run without one.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
	}
}

// Update records the status for a named source. Invalid statuses are stored
// as Unhealthy.
func (m *Monitor) Update(name string, status Status, message string) {
	if m == nil {
		return
	}
	if !status.IsValid() {
		status = Unhealthy
	}

	m.mu.Lock()
	prev, seen := m.checks[name]
	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}
	m.mu.Unlock()

	if status != Healthy && (!seen || prev.Status != status) {
		log.Warn("source degraded", "source", name, "status", string(status), "message", message)
	}
}

// Get returns the check for a named source.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all checks, or Unknown when none
// have been recorded.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallLocked()
}

func (m *Monitor) overallLocked() Status {
	if len(m.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range m.checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns the checks sorted by name.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allLocked()
}

func (m *Monitor) allLocked() []Check {
	result := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Pipeline returns the part of a source name before the first colon, so
// "startup:folder:user" belongs to "startup".
func Pipeline(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}

// Summary returns a JSON-friendly view taken under a single lock so the
// overall, per-pipeline and per-source statuses always agree. Sources that
// are not healthy are listed under "problems" with their messages.
func (m *Monitor) Summary() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]string, len(m.checks))
	pipelines := make(map[string]string)
	problems := []Check{}
	for _, c := range m.allLocked() {
		components[c.Name] = string(c.Status)
		p := Pipeline(c.Name)
		if cur, ok := pipelines[p]; !ok || worse(c.Status, Status(cur)) {
			pipelines[p] = string(c.Status)
		}
		if c.Status != Healthy {
			problems = append(problems, c)
		}
	}

	return map[string]any{
		"status":     string(m.overallLocked()),
		"pipelines":  pipelines,
		"components": components,
		"problems":   problems,
	}
}

// worse returns true if a is worse than b.
func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	case Unknown:
		return 3
	default:
		return 0
	}
}
