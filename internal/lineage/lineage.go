package lineage

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// FileName is the lineage document name at the project root.
const FileName = "project.rs.xml"

// Defaults for documents created from scratch.
const (
	DefaultProjectName = "Electrical Conductivity"
	DefaultProjectType = "EC"
	RealizationTag     = "EC"
)

// Dataset kinds.
const (
	KindVector    = "Vector"
	KindDataTable = "DataTable"
	KindRaster    = "Raster"
)

// TimeLayout formats timestamps written into the document.
const TimeLayout = time.RFC3339

// Meta is a named metadata value.
type Meta struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// MetaData groups Meta entries.
type MetaData struct {
	Meta []Meta `xml:"Meta"`
}

func (m *MetaData) set(name, value string) {
	for i := range m.Meta {
		if m.Meta[i].Name == name {
			m.Meta[i].Value = value
			return
		}
	}
	m.Meta = append(m.Meta, Meta{Name: name, Value: value})
}

// Get returns the value of the named entry.
func (m *MetaData) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.Meta {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Dataset is a Vector, DataTable or Raster entry. A dataset either describes
// a file (Name, Path) or references a project input by id (Ref).
type Dataset struct {
	XMLName xml.Name
	ID      string `xml:"id,attr,omitempty"`
	GUID    string `xml:"guid,attr,omitempty"`
	Ref     string `xml:"ref,attr,omitempty"`
	Name    string `xml:"Name,omitempty"`
	Path    string `xml:"Path,omitempty"`

	// Kind is the element name; it mirrors XMLName.Local.
	Kind string `xml:"-"`
}

func (d Dataset) kind() string {
	if d.Kind != "" {
		return d.Kind
	}
	return d.XMLName.Local
}

// Datasets is a container of mixed dataset elements.
type Datasets struct {
	Items []Dataset `xml:",any"`
}

// put adds ds, replacing an entry of the same kind with the same id or ref.
func (c *Datasets) put(ds Dataset) {
	ds.XMLName = xml.Name{Local: ds.kind()}
	ds.Kind = ""
	for i, cur := range c.Items {
		if cur.XMLName.Local != ds.XMLName.Local {
			continue
		}
		if (ds.ID != "" && cur.ID == ds.ID) || (ds.Ref != "" && cur.Ref == ds.Ref) {
			c.Items[i] = ds
			return
		}
	}
	c.Items = append(c.Items, ds)
}

// Find returns the dataset with the given id.
func (c *Datasets) Find(id string) (Dataset, bool) {
	if c == nil {
		return Dataset{}, false
	}
	for _, d := range c.Items {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// Element preserves an XML element this package does not model.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// Analysis groups outputs produced within a realization.
type Analysis struct {
	Name     string    `xml:"Name"`
	MetaData *MetaData `xml:"MetaData,omitempty"`
	Outputs  *Datasets `xml:"Outputs,omitempty"`
}

// Analyses is the list of analyses of a realization.
type Analyses struct {
	Analysis []*Analysis `xml:"Analysis"`
}

// Realization is a named unit of work inside the project.
type Realization struct {
	XMLName        xml.Name
	ID             string    `xml:"id,attr"`
	GUID           string    `xml:"guid,attr,omitempty"`
	DateCreated    string    `xml:"dateCreated,attr,omitempty"`
	ProductVersion string    `xml:"productVersion,attr,omitempty"`
	Name           string    `xml:"Name"`
	MetaData       *MetaData `xml:"MetaData,omitempty"`
	Inputs         *Datasets `xml:"Inputs,omitempty"`
	Analyses       *Analyses `xml:"Analyses,omitempty"`
	Extra          []Element `xml:",any"`
}

// AddMeta sets a realization metadata value.
func (r *Realization) AddMeta(name, value string) {
	if r.MetaData == nil {
		r.MetaData = &MetaData{}
	}
	r.MetaData.set(name, value)
}

// AddInput records a dataset consumed by the realization.
func (r *Realization) AddInput(ds Dataset) {
	if r.Inputs == nil {
		r.Inputs = &Datasets{}
	}
	r.Inputs.put(ds)
}

// AddInputRef records a reference to a project-level input.
func (r *Realization) AddInputRef(kind, ref string) {
	r.AddInput(Dataset{Kind: kind, Ref: ref})
}

// AddOutput records a dataset produced by the named analysis, creating the
// analysis when needed.
func (r *Realization) AddOutput(analysis string, ds Dataset) {
	a := r.Analysis(analysis)
	if a.Outputs == nil {
		a.Outputs = &Datasets{}
	}
	a.Outputs.put(ds)
}

// Analysis returns the named analysis, creating it when needed.
func (r *Realization) Analysis(name string) *Analysis {
	if r.Analyses == nil {
		r.Analyses = &Analyses{}
	}
	for _, a := range r.Analyses.Analysis {
		if a.Name == name {
			return a
		}
	}
	a := &Analysis{Name: name}
	r.Analyses.Analysis = append(r.Analyses.Analysis, a)
	return a
}

// Realizations holds the realization elements of a project.
type Realizations struct {
	Items []*Realization `xml:",any"`
}

// Project is the root element of the lineage document.
type Project struct {
	XMLName      xml.Name     `xml:"Project"`
	Name         string       `xml:"Name"`
	ProjectType  string       `xml:"ProjectType"`
	MetaData     *MetaData    `xml:"MetaData,omitempty"`
	Inputs       *Datasets    `xml:"Inputs,omitempty"`
	Realizations Realizations `xml:"Realizations"`
	Extra        []Element    `xml:",any"`
}

// Document is a lineage document bound to a file and a clock. The document's
// start time is taken when it is created or loaded.
type Document struct {
	Project *Project

	path  string
	clock clockwork.Clock
	start time.Time
	stop  time.Time
}

// New creates an empty document that will be written to path.
func New(path string, clock clockwork.Clock) *Document {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Document{
		Project: &Project{Name: DefaultProjectName, ProjectType: DefaultProjectType},
		path:    path,
		clock:   clock,
		start:   clock.Now(),
	}
}

// Load reads the document at path, or starts a new one when the file does not
// exist.
func Load(path string, clock clockwork.Clock) (*Document, error) {
	doc := New(path, clock)

	data, err := os.ReadFile(path) //nolint:gosec // project path is supplied by the operator
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var p Project
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}
	doc.Project = &p
	return doc, nil
}

// Path returns the file the document is written to.
func (d *Document) Path() string { return d.path }

// RealizationIDs maps realization names to ids.
func (d *Document) RealizationIDs() map[string]string {
	ids := make(map[string]string, len(d.Project.Realizations.Items))
	for _, r := range d.Project.Realizations.Items {
		ids[r.Name] = r.ID
	}
	return ids
}

// ResolveRealization returns the realization with the given name, appending a
// new one with the next free id when none exists.
func (d *Document) ResolveRealization(name string) (*Realization, bool) {
	for _, r := range d.Project.Realizations.Items {
		if r.Name == name {
			return r, false
		}
	}

	taken := make(map[string]bool)
	for _, r := range d.Project.Realizations.Items {
		taken[r.ID] = true
	}
	id := ""
	for n := 1; ; n++ {
		id = fmt.Sprintf("%s%02d", RealizationTag, n)
		if !taken[id] {
			break
		}
	}

	r := &Realization{
		XMLName:     xml.Name{Local: RealizationTag},
		ID:          id,
		GUID:        NewGUID(),
		DateCreated: d.clock.Now().Format(TimeLayout),
		Name:        name,
	}
	d.Project.Realizations.Items = append(d.Project.Realizations.Items, r)
	return r, true
}

// AddMeta sets a project-level metadata value.
func (d *Document) AddMeta(name, value string) {
	if d.Project.MetaData == nil {
		d.Project.MetaData = &MetaData{}
	}
	d.Project.MetaData.set(name, value)
}

// AddInput records a project-level input dataset.
func (d *Document) AddInput(ds Dataset) {
	if d.Project.Inputs == nil {
		d.Project.Inputs = &Datasets{}
	}
	d.Project.Inputs.put(ds)
}

// Finalize stamps the stop time and returns the start/stop pair.
func (d *Document) Finalize() (time.Time, time.Time) {
	d.stop = d.clock.Now()
	return d.start, d.stop
}

// Marshal renders the document.
func (d *Document) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d.Project, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode project file: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Write saves the document to its path.
func (d *Document) Write() error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0750); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}

// NewGUID returns a fresh dataset or realization identifier.
func NewGUID() string {
	return uuid.NewString()
}
