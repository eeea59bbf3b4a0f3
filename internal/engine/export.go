package engine

import (
	"path"
	"path/filepath"

	"github.com/leapstack-labs/condpredict/internal/lineage"
	"github.com/leapstack-labs/condpredict/internal/project"
)

// Project lineage identifiers.
const (
	AnalysisName      = "Predict Conductivity"
	InputDatasetID    = "SEGMENTS"
	InputDatasetName  = "Segmented Stream Network"
	OutputDatasetID   = "PRED"
	OutputDatasetName = "Predicted Electrical Conductivity"
	ParamTableRef     = "PARAM_TABLE"
	ParamTableName    = "Environmental Parameter Table"
	MetaModel         = "Model"
	MetaOperator      = "Operator"
	MetaPredictStart  = "Predict Start Time"
	MetaPredictStop   = "Predict Stop Time"
)

// exportProject copies the input and output networks into the realization
// directories and writes the lineage document with project-relative paths.
func (e *Engine) exportProject(doc *lineage.Document, req Request, res *Result) error {
	root := req.ProjectDir
	rz, created := doc.ResolveRealization(req.Realization)
	if created {
		e.logger.Debug("created realization", "name", rz.Name, "id", rz.ID)
	}

	inDir, err := project.AbsDir(root, project.CategoryRealizations, project.SubInputs, rz.ID)
	if err != nil {
		return err
	}
	if _, err := project.CopyDataset(req.InNetwork, inDir); err != nil {
		return err
	}
	outDir, err := project.AbsDir(root, project.CategoryRealizations, project.SubOutputs, rz.ID)
	if err != nil {
		return err
	}
	if _, err := project.CopyDataset(req.OutNetwork, outDir); err != nil {
		return err
	}

	inRel, err := project.RelDir(project.CategoryRealizations, project.SubInputs, rz.ID)
	if err != nil {
		return err
	}
	outRel, err := project.RelDir(project.CategoryRealizations, project.SubOutputs, rz.ID)
	if err != nil {
		return err
	}

	start, stop := doc.Finalize()

	doc.AddMeta(MetaOperator, e.operator())
	doc.AddMeta(MetaModel, e.modelName)
	if _, ok := doc.Project.Inputs.Find(ParamTableRef); !ok {
		abs, err := filepath.Abs(req.ParamTable)
		if err != nil {
			abs = req.ParamTable
		}
		doc.AddInput(lineage.Dataset{
			Kind: lineage.KindDataTable,
			ID:   ParamTableRef,
			GUID: lineage.NewGUID(),
			Name: ParamTableName,
			Path: project.Rel(absRoot(root), abs),
		})
	}

	rz.AddInput(lineage.Dataset{
		Kind: lineage.KindVector,
		ID:   InputDatasetID,
		GUID: lineage.NewGUID(),
		Name: InputDatasetName,
		Path: path.Join(inRel, filepath.Base(req.InNetwork)),
	})
	rz.AddInputRef(lineage.KindDataTable, ParamTableRef)
	rz.AddMeta(MetaPredictStart, start.Format(lineage.TimeLayout))
	rz.AddMeta(MetaPredictStop, stop.Format(lineage.TimeLayout))
	rz.AddOutput(AnalysisName, lineage.Dataset{
		Kind: lineage.KindVector,
		ID:   OutputDatasetID,
		GUID: lineage.NewGUID(),
		Name: OutputDatasetName,
		Path: path.Join(outRel, filepath.Base(req.OutNetwork)),
	})

	if err := doc.Write(); err != nil {
		return err
	}

	res.ProjectFile = doc.Path()
	res.RealizationID = rz.ID
	return nil
}

func absRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}
