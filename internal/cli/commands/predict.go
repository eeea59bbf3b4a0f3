package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/condpredict/internal/adapter"
	"github.com/leapstack-labs/condpredict/internal/cli/config"
	"github.com/leapstack-labs/condpredict/internal/cli/output"
	"github.com/leapstack-labs/condpredict/internal/engine"
	"github.com/leapstack-labs/condpredict/internal/model"
)

// MissingJoinKeyMessage is printed when the input network has no LineOID field.
const MissingJoinKeyMessage = "The LineOID attribute field is missing! Cancelling process..."

// NewPredictCommand creates the predict command.
func NewPredictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <in_network> <param_table> <out_network> [project_mode [project_dir [realization]]]",
		Short: "Predict electrical conductivity for a stream network",
		Long: `Run the Random Forest conductivity model against an environmental parameter
table and join the predictions onto each stream segment by LineOID.

The output network keeps only the geometry, LineOID, error_code (when present)
and the predicted conductivity (prdCond). A meta_predict_<timestamp>.xml file
describing the run is written next to the output.

Pass "true" as project_mode to also copy the input and output into a
Riverscapes project directory and record the run in project.rs.xml.`,
		Example: `  # Predict conductivity for a segmented network
  condpredict predict segments.geojson ws_cond_param.dbf out/segments_cond.geojson

  # Predict and record the run in a project
  condpredict predict segments.geojson ws_cond_param.dbf out/segments_cond.geojson true ./project "EC Run"

  # Use a specific Rscript and model
  condpredict predict in.geojson params.dbf out.geojson --rscript /usr/bin/Rscript --model ./rf17bCnd9.rdata`,
		Args: cobra.RangeArgs(3, 6),
		RunE: runPredict,
	}

	cmd.Flags().String("rscript", "", "R interpreter used to run the model (default: Rscript)")
	cmd.Flags().String("script", "", "Scoring script (default: condRF.R next to the binary)")
	cmd.Flags().String("model", "", "Trained model artifact (default: rf17bCnd9.rdata next to the binary)")
	cmd.Flags().String("model-name", "", "Model name recorded in project lineage")
	cmd.Flags().String("workspace", "", "DuckDB scratch workspace (default: in-memory)")

	return cmd
}

// predictSummary is the JSON form of a completed prediction.
type predictSummary struct {
	RunID         string   `json:"run_id,omitempty"`
	OutNetwork    string   `json:"out_network"`
	MetadataPath  string   `json:"metadata_path"`
	ProjectFile   string   `json:"project_file,omitempty"`
	RealizationID string   `json:"realization_id,omitempty"`
	Features      int      `json:"features"`
	Matched       int      `json:"matched"`
	Unmatched     int      `json:"unmatched"`
	RemovedFields []string `json:"removed_fields"`
}

func parseRequest(args []string) engine.Request {
	req := engine.Request{
		InNetwork:  args[0],
		ParamTable: args[1],
		OutNetwork: args[2],
	}
	if len(args) > 3 {
		req.ProjectMode = strings.EqualFold(strings.TrimSpace(args[3]), "true")
	}
	if len(args) > 4 {
		req.ProjectDir = args[4]
	}
	if len(args) > 5 {
		req.Realization = args[5]
	}
	return req
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	r := output.FromContext(ctx)

	runner := &model.RScript{
		Runtime:  cfg.Model.Runtime,
		Script:   cfg.Model.Script,
		Artifact: cfg.Model.Artifact,
		Stdout:   cmd.ErrOrStderr(),
		Stderr:   cmd.ErrOrStderr(),
		Logger:   logger,
	}

	engCfg := engine.Config{
		Runner:    runner,
		Workspace: adapter.Config{Path: cfg.Workspace},
		ModelName: cfg.Model.Name,
		Logger:    logger,
	}
	if cfg.History {
		engCfg.StatePath = cfg.StatePath
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.Predict(ctx, parseRequest(args))
	if errors.Is(err, engine.ErrMissingJoinKey) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), MissingJoinKeyMessage)
		return nil
	}
	if err != nil {
		return err
	}

	return renderPrediction(r, res)
}

func renderPrediction(r *output.Renderer, res *engine.Result) error {
	if r.EffectiveMode() == output.ModeJSON {
		removed := res.RemovedFields
		if removed == nil {
			removed = []string{}
		}
		return r.JSON(predictSummary{
			RunID:         res.RunID,
			OutNetwork:    res.OutNetwork,
			MetadataPath:  res.MetadataPath,
			ProjectFile:   res.ProjectFile,
			RealizationID: res.RealizationID,
			Features:      res.Features,
			Matched:       res.Matched,
			Unmatched:     res.Unmatched,
			RemovedFields: removed,
		})
	}

	r.Success("Conductivity prediction process complete!")
	r.Header(2, "Summary")
	r.KeyValue("Output", res.OutNetwork)
	r.KeyValue("Metadata", res.MetadataPath)
	r.KeyValue("Features", strconv.Itoa(res.Features))
	r.KeyValue("Matched", strconv.Itoa(res.Matched))
	r.KeyValue("Unmatched", strconv.Itoa(res.Unmatched))
	if len(res.RemovedFields) > 0 {
		r.KeyValue("Removed fields", strings.Join(res.RemovedFields, ", "))
	}
	if res.ProjectFile != "" {
		r.KeyValue("Project", res.ProjectFile)
		r.KeyValue("Realization", res.RealizationID)
	}
	if res.Unmatched > 0 {
		r.Warning(fmt.Sprintf("%d segments had no prediction", res.Unmatched))
	}
	return nil
}
