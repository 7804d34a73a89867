package paramap

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/pixelcal/internal/db"
	"github.com/banshee-data/pixelcal/internal/fsutil"
	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/histogram"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
	"github.com/banshee-data/pixelcal/internal/pixel/rollover"
)

// Array names of the cube and range arrays. Parameter arrays are named
// <kind>_param and <kind>_param_error.
const (
	countsName       = "counts"
	meanName         = "mean_response"
	cutCountsName    = "cut_corrected_counts"
	cutMeanName      = "cut_corrected_mean_response"
	rangeName        = "calibrated_range"
	paramSuffix      = "_param"
	paramErrorSuffix = "_param_error"
	artifactJournal  = "DELETE"
)

func paramName(k fit.Kind) string { return k.String() + paramSuffix }
func errorName(k fit.Kind) string { return k.String() + paramErrorSuffix }

// Artifact is everything a calibration run produces.
type Artifact struct {
	RunID     string
	CreatedAt time.Time
	Version   string
	Shape     histogram.Shape
	Cut       rollover.Cut
	// Config is the resolved run configuration as JSON.
	Config  json.RawMessage
	Dropped histogram.DropStats
	// Counts holds the uncut cube, CutCorrected the rollover corrected one.
	Counts       *histogram.Cube
	CutCorrected *histogram.Cube
	Maps         *Maps
	Ledger       fit.Ledger
}

// Validate checks the cubes and maps against Shape.
func (a *Artifact) Validate() error {
	if a.RunID == "" {
		return errors.New("paramap: artifact has no run id")
	}
	if err := a.Shape.Validate(); err != nil {
		return err
	}
	for name, c := range map[string]*histogram.Cube{countsName: a.Counts, cutCountsName: a.CutCorrected} {
		if c == nil || c.Shape != a.Shape || len(c.Counts) != a.Shape.Cells() || len(c.Mean) != a.Shape.Cells() {
			return fmt.Errorf("%w: %s cube does not match %+v", ErrShape, name, a.Shape)
		}
	}
	if a.Maps == nil || a.Maps.Rows != a.Shape.Rows || a.Maps.Cols != a.Shape.Cols {
		return fmt.Errorf("%w: maps do not match %dx%d", ErrShape, a.Shape.Rows, a.Shape.Cols)
	}
	return a.Maps.Validate()
}

// ErrMemoryFS is returned when a Writer is given an in-memory filesystem.
var ErrMemoryFS = errors.New("paramap: artifacts are written by SQLite and need an OS-backed filesystem")

// Writer persists artifacts. The zero value writes to the OS filesystem.
type Writer struct {
	// FS handles the directory, stale temp file removal and the final
	// rename. SQLite itself always writes the temp file through the OS, so
	// FS must address the same disk; wrap fsutil.OSFileSystem to inject
	// failures.
	FS fsutil.FileSystem
}

// Write stores a under path. The SQLite file is built at
// <path>.tmp-<run id> and renamed over path once closed; on any error the
// temporary file is removed and an existing file at path is left intact.
func (w Writer) Write(ctx context.Context, path string, a *Artifact) (err error) {
	if err := a.Validate(); err != nil {
		return err
	}
	fsys := w.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if _, mem := fsys.(*fsutil.MemoryFileSystem); mem {
		return ErrMemoryFS
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", path, a.RunID)
	if fsys.Exists(tmp) {
		if err := fsys.Remove(tmp); err != nil {
			return fmt.Errorf("failed to remove stale %s: %w", tmp, err)
		}
	}
	defer func() {
		if err != nil {
			fsys.Remove(tmp)
			fsys.Remove(tmp + "-journal")
		}
	}()

	database, err := db.Open(tmp, db.Options{JournalMode: artifactJournal})
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	if err := writeTables(ctx, database, a); err != nil {
		database.Close()
		return err
	}
	if err := database.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalise artifact: %w", err)
	}

	if info, statErr := fsys.Stat(path); statErr == nil {
		monitoring.Logf("[paramap] wrote %s (%d bytes, run %s)", path, info.Size(), a.RunID)
	}
	return nil
}

// Write stores a under path on the OS filesystem.
func Write(ctx context.Context, path string, a *Artifact) error {
	return Writer{}.Write(ctx, path, a)
}

func writeTables(ctx context.Context, database *db.DB, a *Artifact) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin artifact transaction: %w", err)
	}
	defer tx.Rollback()

	config := a.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO calibration_run (
			run_id, created_at, version, pixel_rows, pixel_cols, inj_min, inj_max,
			cut_slope, cut_intercept, cut_start_index, config_json,
			dropped_out_of_matrix, dropped_out_of_injection, dropped_bad_response,
			fitted_pixels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.CreatedAt.UnixNano(), a.Version,
		a.Shape.Rows, a.Shape.Cols, a.Shape.MinInjection, a.Shape.MaxInjection,
		a.Cut.Slope, a.Cut.Intercept, a.Cut.StartIndex, string(config),
		int64(a.Dropped.OutOfMatrix), int64(a.Dropped.OutOfInjection), int64(a.Dropped.BadResponse),
		a.Ledger.Pixels,
	)
	if err != nil {
		return fmt.Errorf("insert run metadata: %w", err)
	}

	cubeDims := []int{a.Shape.Rows, a.Shape.Cols, a.Shape.Levels()}
	insert := func(name, dtype string, dims []int, blob []byte) error {
		dimsJSON, err := json.Marshal(dims)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_arrays (name, dtype, dims, codec, data) VALUES (?, ?, ?, ?, ?)`,
			name, dtype, string(dimsJSON), codecZstd, blob); err != nil {
			return fmt.Errorf("insert array %s: %w", name, err)
		}
		return nil
	}
	floats := func(name string, arr FloatArray) error {
		return insert(name, dtypeFloat64, arr.Dims, encodeFloats(arr.Data))
	}

	if err := insert(countsName, dtypeUint32, cubeDims, encodeCounts(a.Counts.Counts)); err != nil {
		return err
	}
	if err := floats(meanName, FloatArray{Dims: cubeDims, Data: a.Counts.Mean}); err != nil {
		return err
	}
	if err := insert(cutCountsName, dtypeUint32, cubeDims, encodeCounts(a.CutCorrected.Counts)); err != nil {
		return err
	}
	if err := floats(cutMeanName, FloatArray{Dims: cubeDims, Data: a.CutCorrected.Mean}); err != nil {
		return err
	}
	for _, k := range fit.Kinds {
		if err := floats(paramName(k), a.Maps.Params[k]); err != nil {
			return err
		}
		if err := floats(errorName(k), a.Maps.Errors[k]); err != nil {
			return err
		}
	}
	if err := floats(rangeName, a.Maps.Range); err != nil {
		return err
	}

	if err := writeLedger(ctx, tx, a.Ledger); err != nil {
		return err
	}
	return tx.Commit()
}

func writeLedger(ctx context.Context, tx *sql.Tx, l fit.Ledger) error {
	for _, k := range fit.Kinds {
		if _, err := tx.ExecContext(ctx, `INSERT INTO fit_failures (fit, count) VALUES (?, ?)`, k.String(), l.Failures(k)); err != nil {
			return fmt.Errorf("insert %s failures: %w", k, err)
		}
	}
	pixels := map[fit.Kind][]hits.Pixel{fit.Line: l.LinePixels, fit.Quadratic: l.QuadraticPixels}
	for _, k := range []fit.Kind{fit.Line, fit.Quadratic} {
		for seq, p := range pixels[k] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fit_failure_pixels (fit, seq, pixel_row, pixel_col) VALUES (?, ?, ?, ?)`,
				k.String(), seq, p.Row, p.Col); err != nil {
				return fmt.Errorf("insert %s failure pixel %v: %w", k, p, err)
			}
		}
	}
	return nil
}

// Read loads an artifact written by Write.
func Read(ctx context.Context, path string) (*Artifact, error) {
	fsys := fsutil.OSFileSystem{}
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("artifact %s does not exist", path)
	}
	database, err := db.Open(path, db.Options{JournalMode: artifactJournal, SkipMigrations: true})
	if err != nil {
		return nil, err
	}
	defer database.Close()

	a := &Artifact{}
	var created int64
	var config string
	var dropped [3]int64
	err = database.QueryRowContext(ctx, `SELECT
			run_id, created_at, version, pixel_rows, pixel_cols, inj_min, inj_max,
			cut_slope, cut_intercept, cut_start_index, config_json,
			dropped_out_of_matrix, dropped_out_of_injection, dropped_bad_response,
			fitted_pixels
		FROM calibration_run LIMIT 1`).Scan(
		&a.RunID, &created, &a.Version,
		&a.Shape.Rows, &a.Shape.Cols, &a.Shape.MinInjection, &a.Shape.MaxInjection,
		&a.Cut.Slope, &a.Cut.Intercept, &a.Cut.StartIndex, &config,
		&dropped[0], &dropped[1], &dropped[2],
		&a.Ledger.Pixels,
	)
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	a.Config = json.RawMessage(config)
	a.Dropped = histogram.DropStats{
		OutOfMatrix:    uint64(dropped[0]),
		OutOfInjection: uint64(dropped[1]),
		BadResponse:    uint64(dropped[2]),
	}
	if err := a.Shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}

	arrays, err := readArrays(ctx, database)
	if err != nil {
		return nil, err
	}
	cubeDims := []int{a.Shape.Rows, a.Shape.Cols, a.Shape.Levels()}
	if a.Counts, err = arrays.cube(countsName, meanName, a.Shape, cubeDims); err != nil {
		return nil, err
	}
	if a.CutCorrected, err = arrays.cube(cutCountsName, cutMeanName, a.Shape, cubeDims); err != nil {
		return nil, err
	}

	a.Maps = &Maps{
		Rows:   a.Shape.Rows,
		Cols:   a.Shape.Cols,
		Params: make(map[fit.Kind]FloatArray, len(fit.Kinds)),
		Errors: make(map[fit.Kind]FloatArray, len(fit.Kinds)),
	}
	for _, k := range fit.Kinds {
		if a.Maps.Params[k], err = arrays.floats(paramName(k)); err != nil {
			return nil, err
		}
		if a.Maps.Errors[k], err = arrays.floats(errorName(k)); err != nil {
			return nil, err
		}
	}
	if a.Maps.Range, err = arrays.floats(rangeName); err != nil {
		return nil, err
	}
	if err := a.Maps.Validate(); err != nil {
		return nil, err
	}

	if err := readLedger(ctx, database, &a.Ledger); err != nil {
		return nil, err
	}
	return a, nil
}

type storedArray struct {
	dtype string
	dims  []int
	codec string
	data  []byte
}

type arraySet map[string]storedArray

func readArrays(ctx context.Context, database *db.DB) (arraySet, error) {
	rows, err := database.QueryContext(ctx, `SELECT name, dtype, dims, codec, data FROM calibration_arrays`)
	if err != nil {
		return nil, fmt.Errorf("query arrays: %w", err)
	}
	defer rows.Close()

	set := arraySet{}
	for rows.Next() {
		var name, dims string
		var s storedArray
		if err := rows.Scan(&name, &s.dtype, &dims, &s.codec, &s.data); err != nil {
			return nil, fmt.Errorf("scan array: %w", err)
		}
		if err := json.Unmarshal([]byte(dims), &s.dims); err != nil {
			return nil, fmt.Errorf("array %s dims: %w", name, err)
		}
		if s.codec != codecZstd {
			return nil, fmt.Errorf("array %s: unsupported codec %q", name, s.codec)
		}
		set[name] = s
	}
	return set, rows.Err()
}

func (set arraySet) get(name, dtype string) (storedArray, error) {
	s, ok := set[name]
	if !ok {
		return s, fmt.Errorf("artifact has no array %s", name)
	}
	if s.dtype != dtype {
		return s, fmt.Errorf("array %s: dtype %s, want %s", name, s.dtype, dtype)
	}
	if product(s.dims) < 0 {
		return s, fmt.Errorf("%w: array %s dims %v", ErrShape, name, s.dims)
	}
	return s, nil
}

func (set arraySet) floats(name string) (FloatArray, error) {
	s, err := set.get(name, dtypeFloat64)
	if err != nil {
		return FloatArray{}, err
	}
	data, err := decodeFloats(s.data, product(s.dims))
	if err != nil {
		return FloatArray{}, fmt.Errorf("array %s: %w", name, err)
	}
	return FloatArray{Dims: s.dims, Data: data}, nil
}

func (set arraySet) counts(name string) (CountArray, error) {
	s, err := set.get(name, dtypeUint32)
	if err != nil {
		return CountArray{}, err
	}
	data, err := decodeCounts(s.data, product(s.dims))
	if err != nil {
		return CountArray{}, fmt.Errorf("array %s: %w", name, err)
	}
	return CountArray{Dims: s.dims, Data: data}, nil
}

func (set arraySet) cube(countsKey, meanKey string, shape histogram.Shape, dims []int) (*histogram.Cube, error) {
	counts, err := set.counts(countsKey)
	if err != nil {
		return nil, err
	}
	mean, err := set.floats(meanKey)
	if err != nil {
		return nil, err
	}
	if !sameDims(counts.Dims, dims) || !sameDims(mean.Dims, dims) {
		return nil, fmt.Errorf("%w: cube %s dims %v / %v, want %v", ErrShape, countsKey, counts.Dims, mean.Dims, dims)
	}
	return &histogram.Cube{Shape: shape, Counts: counts.Data, Mean: mean.Data}, nil
}

func sameDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func readLedger(ctx context.Context, database *db.DB, l *fit.Ledger) error {
	rows, err := database.QueryContext(ctx, `SELECT fit, count FROM fit_failures`)
	if err != nil {
		return fmt.Errorf("query fit failures: %w", err)
	}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			rows.Close()
			return err
		}
		k, err := fit.ParseKind(name)
		if err != nil {
			rows.Close()
			return err
		}
		l.SetFailures(k, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	prow, err := database.QueryContext(ctx, `SELECT fit, pixel_row, pixel_col FROM fit_failure_pixels ORDER BY fit, seq`)
	if err != nil {
		return fmt.Errorf("query failure pixels: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var name string
		var p hits.Pixel
		if err := prow.Scan(&name, &p.Row, &p.Col); err != nil {
			return err
		}
		switch name {
		case fit.Line.String():
			l.LinePixels = append(l.LinePixels, p)
		case fit.Quadratic.String():
			l.QuadraticPixels = append(l.QuadraticPixels, p)
		}
	}
	return prow.Err()
}
