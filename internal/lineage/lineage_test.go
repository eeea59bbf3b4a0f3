package lineage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const existingProject = `<?xml version="1.0" encoding="UTF-8"?>
<Project>
  <Name>Lower Basin</Name>
  <ProjectType>EC</ProjectType>
  <MetaData>
    <Meta name="Region">Interior</Meta>
  </MetaData>
  <Inputs>
    <DataTable id="PARAM_TABLE" guid="a1">
      <Name>Watershed Parameters</Name>
      <Path>01_Inputs/ws_cond_param.dbf</Path>
    </DataTable>
  </Inputs>
  <Realizations>
    <EC id="EC01" guid="r1" dateCreated="2023-01-01T00:00:00Z">
      <Name>Baseline</Name>
      <Notes source="field">kept as-is</Notes>
    </EC>
  </Realizations>
  <Warehouse id="w1"><Url>https://example.org</Url></Warehouse>
</Project>
`

func writeProject(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileStartsNewDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	doc, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultProjectName, doc.Project.Name)
	assert.Empty(t, doc.Project.Realizations.Items)
	assert.Equal(t, path, doc.Path())
}

func TestLoad_InvalidXML(t *testing.T) {
	path := writeProject(t, "<Project><Name>")
	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestResolveRealization(t *testing.T) {
	doc, err := Load(writeProject(t, existingProject), nil)
	require.NoError(t, err)

	t.Run("existing by name", func(t *testing.T) {
		r, created := doc.ResolveRealization("Baseline")
		assert.False(t, created)
		assert.Equal(t, "EC01", r.ID)
	})

	t.Run("new gets next id", func(t *testing.T) {
		r, created := doc.ResolveRealization("Restored")
		assert.True(t, created)
		assert.Equal(t, "EC02", r.ID)
		assert.NotEmpty(t, r.GUID)
		assert.Equal(t, RealizationTag, r.XMLName.Local)
	})

	assert.Equal(t, map[string]string{"Baseline": "EC01", "Restored": "EC02"}, doc.RealizationIDs())
}

func TestDocument_RoundTripPreservesUnknownElements(t *testing.T) {
	path := writeProject(t, existingProject)
	doc, err := Load(path, nil)
	require.NoError(t, err)

	r, _ := doc.ResolveRealization("Baseline")
	r.AddInput(Dataset{Kind: KindVector, ID: "SEGMENTS", GUID: NewGUID(), Name: "Segmented Stream Network", Path: "02_Realizations/EC01/01_Inputs/segments.geojson"})
	r.AddInputRef(KindDataTable, "PARAM_TABLE")
	r.AddOutput("Predict Conductivity", Dataset{Kind: KindVector, ID: "PRED", Name: "Predicted Electrical Conductivity", Path: "02_Realizations/EC01/03_Outputs/pred.geojson"})
	require.NoError(t, doc.Write())

	reloaded, err := Load(path, nil)
	require.NoError(t, err)

	p := reloaded.Project
	assert.Equal(t, "Lower Basin", p.Name)
	v, ok := p.MetaData.Get("Region")
	assert.True(t, ok)
	assert.Equal(t, "Interior", v)

	require.Len(t, p.Extra, 1)
	assert.Equal(t, "Warehouse", p.Extra[0].XMLName.Local)
	assert.Contains(t, string(p.Extra[0].Inner), "https://example.org")

	table, ok := p.Inputs.Find("PARAM_TABLE")
	require.True(t, ok)
	assert.Equal(t, KindDataTable, table.XMLName.Local)

	require.Len(t, p.Realizations.Items, 1)
	real := p.Realizations.Items[0]
	require.Len(t, real.Extra, 1)
	assert.Equal(t, "Notes", real.Extra[0].XMLName.Local)

	require.NotNil(t, real.Inputs)
	require.Len(t, real.Inputs.Items, 2)
	assert.Equal(t, KindVector, real.Inputs.Items[0].XMLName.Local)
	assert.Equal(t, "Segmented Stream Network", real.Inputs.Items[0].Name)
	assert.Equal(t, "PARAM_TABLE", real.Inputs.Items[1].Ref)

	out, ok := real.Analysis("Predict Conductivity").Outputs.Find("PRED")
	require.True(t, ok)
	assert.Equal(t, "02_Realizations/EC01/03_Outputs/pred.geojson", out.Path)
}

func TestRealization_RepeatedAddsReplace(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), FileName), nil)
	r, _ := doc.ResolveRealization("Baseline")

	for _, path := range []string{"a.geojson", "b.geojson"} {
		r.AddInput(Dataset{Kind: KindVector, ID: "SEGMENTS", Path: path})
		r.AddInputRef(KindDataTable, "PARAM_TABLE")
		r.AddOutput("Predict Conductivity", Dataset{Kind: KindVector, ID: "PRED", Path: path})
		r.AddMeta("Model", "rf17bCnd9")
	}

	require.Len(t, r.Inputs.Items, 2)
	assert.Equal(t, "b.geojson", r.Inputs.Items[0].Path)
	require.Len(t, r.Analyses.Analysis, 1)
	assert.Len(t, r.Analyses.Analysis[0].Outputs.Items, 1)
	assert.Len(t, r.MetaData.Meta, 1)
}

func TestDocument_Finalize(t *testing.T) {
	start := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	doc := New(filepath.Join(t.TempDir(), FileName), clock)
	clock.Advance(time.Minute)
	gotStart, gotStop := doc.Finalize()

	assert.Equal(t, start, gotStart)
	assert.Equal(t, start.Add(time.Minute), gotStop)
}

func TestDocument_AddMeta(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "nested", FileName), nil)
	doc.AddMeta("Operator", "analyst")
	doc.AddMeta("Operator", "reviewer")

	require.NoError(t, doc.Write())

	data, err := os.ReadFile(doc.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `<Meta name="Operator">reviewer</Meta>`)
	assert.NotContains(t, string(data), "analyst")
}
