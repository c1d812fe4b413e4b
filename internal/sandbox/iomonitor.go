package sandbox

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSOpKind classifies a recorded filesystem operation.
type FSOpKind string

const (
	FSOpRead   FSOpKind = "read"
	FSOpWrite  FSOpKind = "write"
	FSOpCreate FSOpKind = "create"
	FSOpDelete FSOpKind = "delete"
	FSOpMkdir  FSOpKind = "mkdir"
)

// durableOps are the operation kinds that count as side effects.
// Reads never do.
var durableOps = map[FSOpKind]bool{
	FSOpWrite:  true,
	FSOpCreate: true,
	FSOpDelete: true,
	FSOpMkdir:  true,
}

// FSOperationRecord is one observed filesystem operation.
type FSOperationRecord struct {
	Kind      FSOpKind  `json:"kind"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// IOMonitor accumulates filesystem operations observed during a run.
// It is shared across all tests of a run, which is one of the reasons
// execution must stay strictly sequential.
type IOMonitor struct {
	mu      sync.Mutex
	tempDir string
	ops     []FSOperationRecord
}

// NewIOMonitor creates a monitor. Operations under tempDir are the
// sandbox's own working area and never count as side effects.
func NewIOMonitor(tempDir string) *IOMonitor {
	return &IOMonitor{tempDir: tempDir}
}

// RecordFSOperation records one observed operation.
func (m *IOMonitor) RecordFSOperation(kind FSOpKind, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, FSOperationRecord{
		Kind:      kind,
		Path:      path,
		Timestamp: time.Now(),
	})
}

// GetSideEffects returns the durable operations outside the sandbox's
// temporary working area.
func (m *IOMonitor) GetSideEffects() []FSOperationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var effects []FSOperationRecord
	for _, op := range m.ops {
		if !durableOps[op.Kind] {
			continue
		}
		if m.insideTempDir(op.Path) {
			continue
		}
		effects = append(effects, op)
	}
	return effects
}

// Reset clears recorded operations. Called between tools.
func (m *IOMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

// insideTempDir reports whether path is under the sandbox working area.
func (m *IOMonitor) insideTempDir(path string) bool {
	if m.tempDir == "" {
		return false
	}
	rel, err := filepath.Rel(m.tempDir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
