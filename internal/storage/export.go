package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/reach"
)

type ExportData struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Controller string            `json:"controller"`
	Dt         float64           `json:"dt"`
	CSafety    float64           `json:"c_safety"`
	Steps      int               `json:"steps"`
	Sets       []ExportSet       `json:"sets"`
	Actions    [][]float64       `json:"actions"`
	Metrics    map[string]Metric `json:"metrics"`
}

// ExportSet is one ellipsoid with its bounding box. Shape is nil for a point.
type ExportSet struct {
	Center []float64   `json:"center"`
	Shape  [][]float64 `json:"shape,omitempty"`
	Lower  []float64   `json:"lower"`
	Upper  []float64   `json:"upper"`
}

func exportSet(e ellipsoid.Ellipsoid) ExportSet {
	lb, ub := ellipsoid.BoundingBox(e)
	set := ExportSet{Center: e.CenterSlice(), Lower: lb, Upper: ub}
	if !e.IsPoint() {
		n := e.Dim()
		set.Shape = make([][]float64, n)
		for i := range set.Shape {
			set.Shape[i] = make([]float64, n)
			for j := range set.Shape[i] {
				set.Shape[i][j] = e.Shape.At(i, j)
			}
		}
	}
	return set
}

// ExportJSON writes the run as one JSON document: the start set first,
// then every reached set.
func ExportJSON(w io.Writer, meta *RunMetadata, tube *reach.Tube) error {
	data := ExportData{
		ID:         meta.ID,
		Model:      meta.Model,
		Controller: meta.Controller,
		Dt:         meta.Dt,
		CSafety:    meta.CSafety,
		Steps:      tube.Horizon(),
		Sets:       make([]ExportSet, 0, tube.Horizon()+1),
		Actions:    make([][]float64, len(tube.Actions)),
		Metrics:    meta.Metrics,
	}

	data.Sets = append(data.Sets, exportSet(tube.Start))
	for _, e := range tube.Steps {
		data.Sets = append(data.Sets, exportSet(e))
	}
	for i, u := range tube.Actions {
		data.Actions[i] = u
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path string, meta *RunMetadata, tube *reach.Tube) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, meta, tube)
}
