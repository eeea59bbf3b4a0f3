// Package lineage reads and writes the project lineage document
// (project.rs.xml) that describes a structured project: its realizations and,
// for each realization, the datasets it consumed and produced.
//
// A document is loaded from disk when it exists so that realizations written
// by earlier tools are kept; elements this package does not model are carried
// through unchanged.
//
// # Basic Usage
//
//	doc, err := lineage.Load(filepath.Join(projectDir, lineage.FileName), nil)
//	if err != nil {
//	    return err
//	}
//
//	real, _ := doc.ResolveRealization("Baseline 2017")
//	real.AddInput(lineage.Dataset{Kind: lineage.KindVector, Name: "Segmented Stream Network", Path: rel})
//	start, stop := doc.Finalize()
//
//	if err := doc.Write(); err != nil {
//	    return err
//	}
package lineage
