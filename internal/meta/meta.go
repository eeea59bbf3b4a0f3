// Package meta records a tool run (name, version, parameters, timing and
// status) and serializes it as a small XML document next to the outputs.
package meta

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
)

// StatusSuccess is recorded when a run finishes its outputs.
const StatusSuccess = "Success"

// TimeLayout formats run timestamps.
const TimeLayout = time.RFC3339

// FileName returns the metadata file name for a run started at t,
// meta_predict_<YYYYMMDDHHMM>.xml.
func FileName(t time.Time) string {
	return fmt.Sprintf("meta_predict_%s.xml", t.Format("200601021504"))
}

// Tool identifies the program that produced the run.
type Tool struct {
	Name    string `xml:"Name"`
	Version string `xml:"Version"`
}

// Parameter is one declared run input or output.
type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Run is the record of one execution.
type Run struct {
	Parameters []Parameter `xml:"Parameters>Parameter"`
	TimeStart  string      `xml:"TimeStart"`
	TimeStop   string      `xml:"TimeStop,omitempty"`
	Status     string      `xml:"Status,omitempty"`

	start time.Time
	stop  time.Time
}

// AddParameter appends a named parameter. Order is preserved.
func (r *Run) AddParameter(name, value string) {
	r.Parameters = append(r.Parameters, Parameter{Name: name, Value: value})
}

// Start returns when the run was created.
func (r *Run) Start() time.Time { return r.start }

// Stop returns when the run was finalized, zero until then.
func (r *Run) Stop() time.Time { return r.stop }

type document struct {
	XMLName xml.Name `xml:"Metadata"`
	Tool    Tool     `xml:"Tool"`
	Run     *Run     `xml:"Run"`
}

// Writer builds and writes the metadata document for a single run.
type Writer struct {
	tool  Tool
	clock clockwork.Clock

	// CurrentRun is the run created by CreateRun.
	CurrentRun *Run
}

// NewWriter creates a writer for the named tool. A nil clock uses real time.
func NewWriter(name, version string, clock clockwork.Clock) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{tool: Tool{Name: name, Version: version}, clock: clock}
}

// CreateRun starts a new run and makes it current.
func (w *Writer) CreateRun() *Run {
	now := w.clock.Now()
	w.CurrentRun = &Run{start: now, TimeStart: now.Format(TimeLayout)}
	return w.CurrentRun
}

// FinalizeRun stamps the stop time and status on the current run.
func (w *Writer) FinalizeRun(status string) error {
	if w.CurrentRun == nil {
		return errors.New("no run in progress")
	}
	now := w.clock.Now()
	w.CurrentRun.stop = now
	w.CurrentRun.TimeStop = now.Format(TimeLayout)
	w.CurrentRun.Status = status
	return nil
}

// Marshal renders the document.
func (w *Writer) Marshal() ([]byte, error) {
	if w.CurrentRun == nil {
		return nil, errors.New("no run in progress")
	}
	body, err := xml.MarshalIndent(document{Tool: w.tool, Run: w.CurrentRun}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// WriteFile writes the document to path.
func (w *Writer) WriteFile(path string) error {
	data, err := w.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
