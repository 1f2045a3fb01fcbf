package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// ErrStateNotFound is returned by a StateStore when a node has no snapshot.
var ErrStateNotFound = errors.New("node state not found")

// ErrInvalidNodeID is returned for ids that are blank, too long or contain
// characters other than letters, digits, '-', '_' and '.'.
var ErrInvalidNodeID = errors.New("invalid node id")

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateNodeID checks id against the accepted node id form.
func ValidateNodeID(id string) error {
	if !nodeIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidNodeID, id)
	}
	return nil
}

// NodeKind distinguishes read nodes from write nodes.
type NodeKind string

const (
	KindRead  NodeKind = "read"
	KindWrite NodeKind = "write"
)

// ParseNodeKind accepts "read" or "write".
func ParseNodeKind(s string) (NodeKind, error) {
	switch NodeKind(s) {
	case KindRead, KindWrite:
		return NodeKind(s), nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

// ReadState is the persisted configuration of a read node.
type ReadState struct {
	Sources  []plan.Source    `json:"sources"`
	Options  plan.ReadOptions `json:"options"`
	Strategy table.Strategy   `json:"strategy,omitempty"`
}

// NewReadState returns a state with default options and the auto strategy.
func NewReadState(sources ...plan.Source) ReadState {
	return ReadState{
		Sources:  sources,
		Options:  plan.DefaultReadOptions(),
		Strategy: table.StrategyAuto,
	}
}

// UnmarshalJSON fills defaults for members the snapshot omits.
func (s *ReadState) UnmarshalJSON(data []byte) error {
	type alias ReadState
	a := alias(NewReadState())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ReadState(a)
	return nil
}

// WriteState is the persisted configuration of a write node.
type WriteState struct {
	plan.Target
}

// NewWriteState returns a csv target with default options.
func NewWriteState() WriteState {
	return WriteState{Target: plan.Target{
		Format:  plan.FormatCSV,
		Options: plan.DefaultWriteOptions(),
	}}
}

// UnmarshalJSON fills defaults for members the snapshot omits.
func (s *WriteState) UnmarshalJSON(data []byte) error {
	t := NewWriteState().Target
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	s.Target = t
	return nil
}

// NodeState is one stored snapshot. State holds a ReadState or WriteState
// encoded as JSON.
type NodeState struct {
	ID        string          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	State     json.RawMessage `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunRecord is one entry of the run history.
type RunRecord struct {
	ID         string        `json:"id"`
	NodeID     string        `json:"node_id,omitempty"`
	Kind       NodeKind      `json:"kind"`
	Plan       string        `json:"plan"`
	Outcome    table.Outcome `json:"outcome,omitempty"`
	Rows       int           `json:"rows"`
	Cols       int           `json:"cols"`
	Path       string        `json:"path,omitempty"`
	Bytes      int64         `json:"bytes,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	IPAddress  string        `json:"ip_address,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	NodeID string
	Kind   NodeKind
	Limit  int
}

// DefaultRunLimit caps ListRuns when the filter sets no limit.
const DefaultRunLimit = 100

// StateStore persists node snapshots and the run history.
type StateStore interface {
	SaveState(ctx context.Context, s NodeState) error
	LoadState(ctx context.Context, kind NodeKind, id string) (NodeState, error)
	DeleteState(ctx context.Context, kind NodeKind, id string) error
	ListStates(ctx context.Context) ([]NodeState, error)

	RecordRun(ctx context.Context, r RunRecord) error
	ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error)
}
