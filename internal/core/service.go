package core

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/eval"
	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// EvalTimeout bounds a single node evaluation, including downloads.
var EvalTimeout = 10 * time.Minute

// SourceResolver turns remote sources into local ones. The local copies stay
// readable until release is called.
type SourceResolver interface {
	ResolveAll(ctx context.Context, srcs []plan.Source) (resolved []plan.Source, release func(), err error)
}

// ServiceConfig wires a Service. Store is required; the rest have defaults
// or disable the feature they back when nil.
type ServiceConfig struct {
	Store     StateStore
	Resolver  SourceResolver
	Uploads   *acquire.UploadStore
	Mounts    *acquire.Mounts
	Evaluator *eval.Evaluator
	Limiter   *EvalLimiter
	// WriteDir anchors write targets with an empty or relative directory.
	// When set, targets must stay inside it.
	WriteDir string
	// ReadRoots confines local sources to these directories. Empty allows
	// any path.
	ReadRoots []string
	// Timeout bounds one evaluation; zero means EvalTimeout.
	Timeout time.Duration
	Now     func() time.Time
}

// Service runs read and write nodes: it acquires sources, builds plans,
// evaluates them under the evaluation limiter and keeps node snapshots and
// the run history in a StateStore.
type Service struct {
	store     StateStore
	resolver  SourceResolver
	uploads   *acquire.UploadStore
	mounts    *acquire.Mounts
	eval      *eval.Evaluator
	limiter   *EvalLimiter
	writeDir  string
	readRoots []string
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a new Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	s := &Service{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		uploads:  cfg.Uploads,
		mounts:   cfg.Mounts,
		eval:     cfg.Evaluator,
		limiter:  cfg.Limiter,
		writeDir: cfg.WriteDir,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
	}
	roots, err := acquire.AbsRoots(cfg.ReadRoots...)
	if err != nil {
		return nil, fmt.Errorf("read roots: %w", err)
	}
	s.readRoots = roots
	if s.writeDir != "" {
		if s.writeDir, err = filepath.Abs(s.writeDir); err != nil {
			return nil, fmt.Errorf("write dir: %w", err)
		}
	}

	if s.eval == nil {
		s.eval = eval.New()
	}
	if s.limiter == nil {
		s.limiter = NewEvalLimiter(0, 0)
	}
	if s.timeout <= 0 {
		s.timeout = EvalTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Detection is the format registry's view of one source.
type Detection struct {
	Source    string          `json:"source"`
	Extension string          `json:"extension"`
	Category  format.Category `json:"category"`
	Supported bool            `json:"supported"`
}

// Detect classifies each path or URL by extension. No file is opened.
// Supported is false when no reader, including the generic importer,
// handles the extension.
func (s *Service) Detect(locations ...string) []Detection {
	out := make([]Detection, len(locations))
	for i, loc := range locations {
		cat, err := format.Detect(loc)
		ext := format.Extension(loc)
		out[i] = Detection{
			Source:    loc,
			Extension: ext,
			Category:  cat,
			Supported: err == nil && (!cat.UsesGenericImporter() || eval.Importable(ext)),
		}
	}
	return out
}

// resolve acquires remote sources. Without a resolver they pass through
// and the plan builder rejects them.
func (s *Service) resolve(ctx context.Context, srcs []plan.Source) ([]plan.Source, func(), error) {
	if s.resolver == nil {
		return srcs, func() {}, nil
	}
	return s.resolver.ResolveAll(ctx, srcs)
}

// confineSources rejects local sources outside the read roots. Remote
// sources are checked after acquisition, where they point into the download
// directory.
func (s *Service) confineSources(srcs []plan.Source) error {
	if len(s.readRoots) == 0 {
		return nil
	}
	for _, src := range srcs {
		if src.IsRemote() || strings.TrimSpace(src.Path) == "" {
			continue
		}
		if _, err := acquire.Confine(s.readRoots, src.Path); err != nil {
			return err
		}
	}
	return nil
}

// PlanRead acquires the state's sources and builds its read plan.
func (s *Service) PlanRead(ctx context.Context, state ReadState) (plan.ReadPlan, error) {
	p, release, err := s.planRead(ctx, state)
	if err != nil {
		return nil, err
	}
	release()
	return p, nil
}

// planRead is PlanRead keeping the acquired copies leased until release.
func (s *Service) planRead(ctx context.Context, state ReadState) (plan.ReadPlan, func(), error) {
	if err := s.confineSources(state.Sources); err != nil {
		return nil, nil, err
	}
	srcs, release, err := s.resolve(ctx, state.Sources)
	if err != nil {
		return nil, nil, err
	}
	if err := s.confineSources(srcs); err != nil {
		release()
		return nil, nil, err
	}
	p, err := plan.BuildReadPlan(srcs, state.Options, state.Strategy)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

// ReadResult is the output of a read node.
type ReadResult struct {
	Plan    plan.ReadPlan
	Table   *table.Table
	Outcome table.Outcome
	// Warning is set when the auto strategy kept only the first source.
	Warning string
}

// ReadNode acquires, plans and evaluates a read node. An auto combine that
// falls back is not an error; the result carries the outcome and a warning.
func (s *Service) ReadNode(ctx context.Context, state ReadState) (ReadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	var res ReadResult
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		p, release, err := s.planRead(ctx, state)
		if err != nil {
			return err
		}
		defer release()
		res.Plan = p

		combined, err := s.eval.Read(ctx, p)
		if err != nil {
			return err
		}
		res.Table = combined.Table
		res.Outcome = combined.Outcome
		if combined.Outcome == table.OutcomeFellBack {
			n := len(p.(plan.MultiLoad).Loads)
			res.Warning = fmt.Sprintf("could not combine %d files (%v); using the first file only", n, combined.Cause)
		}
		return nil
	})

	rec := RunRecord{Kind: KindRead, Outcome: res.Outcome}
	if res.Plan != nil {
		rec.Plan = res.Plan.String()
	}
	if res.Table != nil {
		rec.Rows, rec.Cols = res.Table.NumRows(), res.Table.NumCols()
	}
	s.recordRun(ctx, rec, start, err)

	if err != nil {
		return ReadResult{}, err
	}
	return res, nil
}

// resolveTarget anchors an empty or relative directory at the write dir and
// rejects directories that leave it. Without a write dir targets pass
// through.
func (s *Service) resolveTarget(t plan.Target) (plan.Target, error) {
	if s.writeDir == "" {
		return t, nil
	}
	dir := t.Directory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.writeDir, dir)
	}
	dir = filepath.Clean(dir)
	if !acquire.Within(s.writeDir, dir) {
		return plan.Target{}, fmt.Errorf("%w: write directory %s", acquire.ErrOutsideRoot, t.Directory)
	}
	t.Directory = dir
	return t, nil
}

// WriteDir returns the absolute directory write targets are confined to, or
// "" when targets are unrestricted.
func (s *Service) WriteDir() string { return s.writeDir }

// PlanWrite builds the write plan for tables with the service clock.
func (s *Service) PlanWrite(state WriteState, tables plan.TableSet) (plan.WritePlan, error) {
	target, err := s.resolveTarget(state.Target)
	if err != nil {
		return nil, err
	}
	return plan.BuildWritePlan(tables, target, s.now())
}

// WriteResult is the output of a write node.
type WriteResult struct {
	Plan plan.WritePlan
	eval.WriteResult
}

// WriteNode plans and evaluates a write node. Zero tables write nothing.
func (s *Service) WriteNode(ctx context.Context, state WriteState, tables plan.TableSet) (WriteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	var res WriteResult
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		p, err := s.PlanWrite(state, tables)
		if err != nil {
			return err
		}
		res.Plan = p

		out, err := s.eval.Write(ctx, p)
		if err != nil {
			return err
		}
		res.WriteResult = out
		return nil
	})

	rec := RunRecord{Kind: KindWrite, Path: res.Path, Bytes: res.Bytes}
	if res.Plan != nil {
		rec.Plan = res.Plan.String()
	}
	for _, nt := range tables {
		if nt.Table != nil {
			rec.Rows += nt.Table.NumRows()
		}
	}
	s.recordRun(ctx, rec, start, err)

	if err != nil {
		return WriteResult{}, err
	}
	return res, nil
}

func (s *Service) recordRun(ctx context.Context, rec RunRecord, start time.Time, runErr error) {
	rec.ID = uuid.NewString()
	rec.NodeID = GetNodeIDFromContext(ctx)
	rec.IPAddress = GetIPAddressFromContext(ctx)
	rec.UserAgent = GetUserAgentFromContext(ctx)
	rec.CreatedAt = s.now().UTC()
	rec.DurationMS = rec.CreatedAt.Sub(start).Milliseconds()
	if runErr != nil {
		rec.ErrorCode = MapError(runErr).Code
		rec.Error = runErr.Error()
	}

	// The evaluation context may already be cancelled; the record should
	// still land.
	if err := s.store.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		logging.FromContext(ctx).Warn("record run failed", "kind", rec.Kind, "error", err)
	}
}

// Runs returns the run history, newest first.
func (s *Service) Runs(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultRunLimit
	}
	return s.store.ListRuns(ctx, f)
}

// SaveReadState validates and stores a read node snapshot.
func (s *Service) SaveReadState(ctx context.Context, id string, state ReadState) error {
	if err := state.Options.Validate(); err != nil {
		return err
	}
	if _, err := table.ParseStrategy(string(state.Strategy)); err != nil {
		return err
	}
	for _, src := range state.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
	}
	return s.saveState(ctx, KindRead, id, state)
}

// LoadReadState returns a stored read node snapshot.
func (s *Service) LoadReadState(ctx context.Context, id string) (ReadState, error) {
	var state ReadState
	err := s.loadState(ctx, KindRead, id, &state)
	return state, err
}

// SaveWriteState validates and stores a write node snapshot.
func (s *Service) SaveWriteState(ctx context.Context, id string, state WriteState) error {
	if _, err := plan.ParseWriteFormat(string(state.Format)); err != nil {
		return err
	}
	if err := state.Options.Validate(); err != nil {
		return err
	}
	return s.saveState(ctx, KindWrite, id, state)
}

// LoadWriteState returns a stored write node snapshot.
func (s *Service) LoadWriteState(ctx context.Context, id string) (WriteState, error) {
	var state WriteState
	err := s.loadState(ctx, KindWrite, id, &state)
	return state, err
}

// DeleteState removes a node snapshot.
func (s *Service) DeleteState(ctx context.Context, kind NodeKind, id string) error {
	if err := ValidateNodeID(id); err != nil {
		return err
	}
	return s.store.DeleteState(ctx, kind, id)
}

// ListStates returns every stored snapshot.
func (s *Service) ListStates(ctx context.Context) ([]NodeState, error) {
	return s.store.ListStates(ctx)
}

// RunReadNode evaluates the stored snapshot of read node id.
func (s *Service) RunReadNode(ctx context.Context, id string) (ReadResult, error) {
	state, err := s.LoadReadState(ctx, id)
	if err != nil {
		return ReadResult{}, err
	}
	return s.ReadNode(ContextWithNodeID(ctx, id), state)
}

// RunWriteNode writes tables with the stored snapshot of write node id.
func (s *Service) RunWriteNode(ctx context.Context, id string, tables plan.TableSet) (WriteResult, error) {
	state, err := s.LoadWriteState(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	return s.WriteNode(ContextWithNodeID(ctx, id), state, tables)
}

func (s *Service) saveState(ctx context.Context, kind NodeKind, id string, state any) error {
	if err := ValidateNodeID(id); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", kind, err)
	}
	return s.store.SaveState(ctx, NodeState{
		ID:        id,
		Kind:      kind,
		State:     raw,
		UpdatedAt: s.now().UTC(),
	})
}

func (s *Service) loadState(ctx context.Context, kind NodeKind, id string, dst any) error {
	if err := ValidateNodeID(id); err != nil {
		return err
	}
	ns, err := s.store.LoadState(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(ns.State, dst); err != nil {
		return fmt.Errorf("decode %s state %s: %w", kind, id, err)
	}
	return nil
}

// SaveUpload persists an uploaded file.
func (s *Service) SaveUpload(name string, r io.Reader) (acquire.Upload, error) {
	if s.uploads == nil {
		return acquire.Upload{}, fmt.Errorf("uploads are not configured")
	}
	return s.uploads.Save(name, r)
}

// ListUploads returns persisted uploads, newest first.
func (s *Service) ListUploads() ([]acquire.Upload, error) {
	if s.uploads == nil {
		return nil, nil
	}
	return s.uploads.List()
}

// UploadedPaths returns the local path of every persisted upload.
func (s *Service) UploadedPaths() ([]string, error) {
	if s.uploads == nil {
		return nil, nil
	}
	return s.uploads.Paths()
}

// DeleteUpload removes a persisted upload.
func (s *Service) DeleteUpload(id string) error {
	if s.uploads == nil {
		return fmt.Errorf("uploads are not configured")
	}
	return s.uploads.Delete(id)
}

// MountNames returns the configured file-browser roots.
func (s *Service) MountNames() []string {
	if s.mounts == nil {
		return nil
	}
	return s.mounts.Names()
}

// ListMount lists rel inside a file-browser root.
func (s *Service) ListMount(mount, rel string) ([]acquire.Entry, error) {
	if s.mounts == nil {
		return nil, fmt.Errorf("%w: %s", acquire.ErrMountNotFound, mount)
	}
	return s.mounts.List(mount, strings.TrimPrefix(rel, "/"))
}

// LimiterStatus reports evaluation slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Drain waits for running evaluations to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
