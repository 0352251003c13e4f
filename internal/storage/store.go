package storage

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/dynamo"
	"github.com/san-kum/safereach/internal/ellipsoid"
	"github.com/san-kum/safereach/internal/experiment"
	"github.com/san-kum/safereach/internal/reach"
	"gonum.org/v1/gonum/mat"
)

const (
	metadataFile  = "metadata.json"
	ellipsoidFile = "ellipsoids.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID             string            `json:"id"`
	Model          string            `json:"model"`
	Backend        string            `json:"backend"`
	Controller     string            `json:"controller"`
	Timestamp      time.Time         `json:"timestamp"`
	Seed           int64             `json:"seed"`
	Dt             float64           `json:"dt"`
	Horizon        int               `json:"horizon"`
	R              int               `json:"r"`
	CSafety        float64           `json:"c_safety"`
	FirstViolation int               `json:"first_violation"`
	CommittedSafe  bool              `json:"committed_safe"`
	ElapsedMS      float64           `json:"elapsed_ms"`
	Metrics        map[string]Metric `json:"metrics"`
	Config         *config.Config    `json:"config,omitempty"`
}

// Metric is a metric value whose JSON form also carries ±Inf and NaN, which
// the log-volume of a degenerate set produces.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return json.Marshal(f)
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*m = Metric(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// MetadataFor summarizes an experiment result.
func MetadataFor(res *experiment.Result) RunMetadata {
	cfg := res.Config
	meta := RunMetadata{
		Model:          cfg.Model,
		Backend:        cfg.Backend,
		Controller:     cfg.Controller.Type,
		Seed:           cfg.Seed,
		Dt:             cfg.Dt,
		Horizon:        res.Tube.Horizon(),
		R:              cfg.R,
		CSafety:        cfg.BetaSafety,
		FirstViolation: res.FirstViolation,
		CommittedSafe:  res.CommittedSafe,
		ElapsedMS:      float64(res.Duration.Microseconds()) / 1000,
		Metrics:        make(map[string]Metric, len(res.Tube.Metrics)),
		Config:         cfg,
	}
	for k, v := range res.Tube.Metrics {
		meta.Metrics[k] = Metric(v)
	}
	return meta
}

func newRunID(model string) string {
	id, _, _ := strings.Cut(uuid.NewString(), "-")
	return fmt.Sprintf("%s_%s", model, id)
}

// Save writes the metadata and the tube under a fresh run id and returns it.
func (s *Store) Save(meta RunMetadata, tube *reach.Tube) (string, error) {
	meta.ID = newRunID(meta.Model)
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := writeRun(runDir, meta, tube); err != nil {
		os.RemoveAll(runDir)
		return "", err
	}
	return meta.ID, nil
}

func writeRun(runDir string, meta RunMetadata, tube *reach.Tube) error {
	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := writeTube(filepath.Join(runDir, ellipsoidFile), tube); err != nil {
		return fmt.Errorf("write ellipsoids: %w", err)
	}
	return nil
}

// writeTube stores one row per set: the start set as step 0, then each
// reached set with the action applied to reach it. Shapes are row-major.
func writeTube(path string, tube *reach.Tube) error {
	if len(tube.Actions) != len(tube.Steps) {
		return fmt.Errorf("%w: %d actions for %d steps", dynamo.ErrDimensionMismatch, len(tube.Actions), len(tube.Steps))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	n := tube.Start.Dim()
	nu := 0
	if len(tube.Actions) > 0 {
		nu = len(tube.Actions[0])
	}

	header := []string{"step", "kind"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("c%d", i))
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			header = append(header, fmt.Sprintf("q%d%d", i, j))
		}
	}
	for i := 0; i < nu; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	if err := w.Write(tubeRow(0, tube.Start, nil, nu)); err != nil {
		return err
	}
	for t, e := range tube.Steps {
		if err := w.Write(tubeRow(t+1, e, tube.Actions[t], nu)); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func tubeRow(step int, e ellipsoid.Ellipsoid, u dynamo.Control, nu int) []string {
	kind := "set"
	if e.IsPoint() {
		kind = "point"
	}
	row := []string{strconv.Itoa(step), kind}
	for _, v := range e.CenterSlice() {
		row = append(row, formatFloat(v))
	}
	q := e.ShapeDense()
	n := e.Dim()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row = append(row, formatFloat(q.At(i, j)))
		}
	}
	for i := 0; i < nu; i++ {
		if u == nil {
			row = append(row, "")
			continue
		}
		row = append(row, formatFloat(u[i]))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), strings.Compare(a.ID, b.ID))
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata of %s: %w", runID, err)
	}

	return &meta, nil
}

// LoadTube reads back the sets and actions of a run. Metrics come from
// the metadata.
func (s *Store) LoadTube(runID string) (*reach.Tube, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.baseDir, runID, ellipsoidFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ellipsoids of %s: %w", runID, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("run %s has no start set", runID)
	}

	header := records[0]
	n := 0
	for _, h := range header {
		if strings.HasPrefix(h, "c") {
			n++
		}
	}
	nu := len(header) - 2 - n - n*n
	if n == 0 || nu < 0 {
		return nil, fmt.Errorf("run %s: malformed header %v", runID, header)
	}

	tube := &reach.Tube{Metrics: make(map[string]float64, len(meta.Metrics))}
	for k, v := range meta.Metrics {
		tube.Metrics[k] = float64(v)
	}

	for i, rec := range records[1:] {
		e, u, err := parseRow(rec, n, nu)
		if err != nil {
			return nil, fmt.Errorf("run %s row %d: %w", runID, i+1, err)
		}
		if i == 0 {
			tube.Start = e
			continue
		}
		tube.Steps = append(tube.Steps, e)
		tube.Actions = append(tube.Actions, u)
	}
	return tube, nil
}

func parseRow(rec []string, n, nu int) (ellipsoid.Ellipsoid, dynamo.Control, error) {
	if len(rec) != 2+n+n*n+nu {
		return ellipsoid.Ellipsoid{}, nil, fmt.Errorf("%w: %d fields", dynamo.ErrDimensionMismatch, len(rec))
	}
	vals := make([]float64, n+n*n)
	for i := range vals {
		v, err := strconv.ParseFloat(rec[2+i], 64)
		if err != nil {
			return ellipsoid.Ellipsoid{}, nil, err
		}
		vals[i] = v
	}
	center := mat.NewVecDense(n, vals[:n])

	var u dynamo.Control
	if nu > 0 && rec[2+n+n*n] != "" {
		u = make(dynamo.Control, nu)
		for i := range u {
			v, err := strconv.ParseFloat(rec[2+n+n*n+i], 64)
			if err != nil {
				return ellipsoid.Ellipsoid{}, nil, err
			}
			u[i] = v
		}
	}

	if rec[1] == "point" {
		return ellipsoid.Point(center), u, nil
	}
	shape := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			shape.SetSym(i, j, vals[n+i*n+j])
		}
	}
	return ellipsoid.New(center, shape), u, nil
}
