// Package engine runs the conductivity prediction pipeline.
// It validates the stream network, invokes the scoring model, joins the
// predictions back onto the network and records run and project metadata.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/condpredict/internal/adapter"
	"github.com/leapstack-labs/condpredict/internal/join"
	"github.com/leapstack-labs/condpredict/internal/lineage"
	"github.com/leapstack-labs/condpredict/internal/meta"
	"github.com/leapstack-labs/condpredict/internal/model"
	"github.com/leapstack-labs/condpredict/internal/network"
	"github.com/leapstack-labs/condpredict/internal/state"
)

// Tool identity recorded in run metadata.
const (
	ToolName    = "Predict Conductivity"
	ToolVersion = "0.4"
)

// Run metadata parameter names.
const (
	ParamInNetwork  = "Stream network polyline feature class"
	ParamTable      = "Environmental parameter table"
	ParamOutNetwork = "Predicted conductivity feature class"
	ParamMetadata   = "Output metadata XML"
)

// ErrMissingJoinKey is returned when the input network has no LineOID field.
// No outputs are written in that case.
var ErrMissingJoinKey = errors.New("the LineOID attribute field is missing")

// Engine orchestrates a prediction run.
type Engine struct {
	runner    model.Runner
	store     state.Store
	workspace adapter.Config
	clock     clockwork.Clock
	logger    *slog.Logger
	modelName string
	operator  func() string
}

// Config holds engine configuration.
type Config struct {
	// Runner invokes the scoring model (required)
	Runner model.Runner
	// StatePath is the SQLite run history database (optional, history is off when empty)
	StatePath string
	// Workspace configures the scratch DuckDB workspace, in-memory by default
	Workspace adapter.Config
	// ModelName is recorded in the project lineage
	ModelName string
	// Clock is used for timestamps (optional, uses real time if nil)
	Clock clockwork.Clock
	// Operator reports who is running the tool (optional, uses the OS user)
	Operator func() string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Request is one prediction run.
type Request struct {
	InNetwork   string
	ParamTable  string
	OutNetwork  string
	ProjectMode bool
	ProjectDir  string
	Realization string
}

// Validate checks that the required paths are present.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.InNetwork) == "" {
		errs = append(errs, errors.New("input stream network is required"))
	}
	if strings.TrimSpace(r.ParamTable) == "" {
		errs = append(errs, errors.New("parameter table is required"))
	}
	if strings.TrimSpace(r.OutNetwork) == "" {
		errs = append(errs, errors.New("output stream network is required"))
	}
	if r.ProjectMode {
		if strings.TrimSpace(r.ProjectDir) == "" {
			errs = append(errs, errors.New("project directory is required in project mode"))
		}
		if strings.TrimSpace(r.Realization) == "" {
			errs = append(errs, errors.New("realization name is required in project mode"))
		}
	}
	return errors.Join(errs...)
}

// Result describes a completed run.
type Result struct {
	RunID         string
	OutNetwork    string
	MetadataPath  string
	ProjectFile   string
	RealizationID string
	Features      int
	Matched       int
	Unmatched     int
	RemovedFields []string
}

// New creates an engine. When StatePath is set the run history database is
// opened and migrated.
func New(cfg Config) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, errors.New("model runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ws := cfg.Workspace
	if ws.Path == "" {
		ws.Path = ":memory:"
	}
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = model.DefaultName
	}
	operator := cfg.Operator
	if operator == nil {
		operator = currentUser
	}

	e := &Engine{
		runner:    cfg.Runner,
		workspace: ws,
		clock:     clock,
		logger:    logger,
		modelName: modelName,
		operator:  operator,
	}

	if cfg.StatePath != "" {
		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate state store: %w", err)
		}
		e.store = store
	}

	return e, nil
}

// Close releases the run history database.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Store returns the run history store, nil when history is disabled.
func (e *Engine) Store() state.Store { return e.store }

// Predict runs the pipeline for req.
func (e *Engine) Predict(ctx context.Context, req Request) (_ *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	outDir := filepath.Dir(req.OutNetwork)

	writer := meta.NewWriter(ToolName, ToolVersion, e.clock)
	run := writer.CreateRun()
	metaPath := filepath.Join(outDir, meta.FileName(run.Start()))
	run.AddParameter(ParamInNetwork, req.InNetwork)
	run.AddParameter(ParamTable, req.ParamTable)
	run.AddParameter(ParamOutNetwork, req.OutNetwork)
	run.AddParameter(ParamMetadata, metaPath)

	res := &Result{OutNetwork: req.OutNetwork}
	res.RunID = e.recordStart(run)
	defer func() { e.recordCompletion(res, err) }()

	fc, err := network.Load(req.InNetwork)
	if err != nil {
		return nil, err
	}
	if !network.HasField(fc, network.JoinKey) {
		return nil, ErrMissingJoinKey
	}

	var doc *lineage.Document
	if req.ProjectMode {
		doc, err = lineage.Load(filepath.Join(req.ProjectDir, lineage.FileName), e.clock)
		if err != nil {
			return nil, err
		}
	}

	e.logger.Info("predicting conductivity using Random Forest model", slog.String("params", req.ParamTable))

	modelReq := model.Request{OutputDir: outDir, ParamTable: req.ParamTable}
	defer func() {
		if rmErr := removeScratch(modelReq.OutputPath()); rmErr != nil && err == nil {
			err = rmErr
		}
	}()
	if err := e.runner.Predict(ctx, modelReq); err != nil {
		return nil, fmt.Errorf("failed to run model: %w", err)
	}

	joined, err := e.join(ctx, fc, modelReq.OutputPath())
	if err != nil {
		return nil, err
	}
	res.Features = len(joined.Features.Features)
	res.Matched = joined.Matched
	res.Unmatched = joined.Unmatched

	e.logger.Info("exporting final feature class", slog.String("path", req.OutNetwork))
	res.RemovedFields = network.RetainFields(joined.Features, network.RetainedFields...)
	if err := network.Save(req.OutNetwork, joined.Features); err != nil {
		return nil, err
	}

	if err := writer.FinalizeRun(meta.StatusSuccess); err != nil {
		return nil, err
	}
	if err := writer.WriteFile(metaPath); err != nil {
		return nil, err
	}
	res.MetadataPath = metaPath

	if doc != nil {
		e.logger.Info("exporting to project", slog.String("dir", req.ProjectDir))
		if err := e.exportProject(doc, req, res); err != nil {
			return nil, err
		}
	}

	e.logger.Info("conductivity prediction complete",
		slog.Int("features", res.Features),
		slog.Int("matched", res.Matched),
		slog.Int("unmatched", res.Unmatched))
	return res, nil
}

func (e *Engine) join(ctx context.Context, fc *geojson.FeatureCollection, csvPath string) (_ *join.Result, err error) {
	ws, err := adapter.Open(ctx, e.workspace, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch workspace: %w", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close scratch workspace: %w", cerr)
		}
	}()

	e.logger.Info("joining predicted conductivity results to the stream network")
	return join.New(ws, e.logger).Join(ctx, fc, csvPath)
}

func removeScratch(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return os.Getenv("USER")
	}
	return u.Username
}
