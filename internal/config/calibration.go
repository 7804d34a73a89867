package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical calibration defaults
// file, relative to the repository root.
const DefaultConfigPath = "config/calibration.defaults.json"

// CalibrationConfig configures one calibration run. Every field is
// optional; the Get* accessors supply the default for an omitted field,
// so partial files are safe.
type CalibrationConfig struct {
	// Matrix and scan
	Rows          *int  `json:"rows,omitempty"`
	Cols          *int  `json:"cols,omitempty"`
	InjectionMin  *int  `json:"injection_min,omitempty"`
	InjectionMax  *int  `json:"injection_max,omitempty"`
	InjectionStep *int  `json:"injection_step,omitempty"`
	InjectionList []int `json:"injection_list,omitempty"` // explicit scan levels, overrides min/max/step

	// Streaming
	ChunkSize    *int `json:"chunk_size,omitempty"`
	MaxCubeCells *int `json:"max_cube_cells,omitempty"`

	// Rollover cut
	RolloverSlope      *float64 `json:"rollover_slope,omitempty"`
	RolloverIntercept  *float64 `json:"rollover_intercept,omitempty"`
	RolloverStartIndex *int     `json:"rollover_start_index,omitempty"`

	// Fits
	SCurveGuess   []float64 `json:"scurve_guess,omitempty"` // amplitude, mean, sigma
	ResponseMax   *float64  `json:"response_max,omitempty"`
	MaxIterations *int      `json:"max_iterations,omitempty"`
	Workers       *int      `json:"workers,omitempty"` // 0 = one per CPU

	// Report
	ThresholdRange []float64 `json:"threshold_range,omitempty"`
	NoiseRange     []float64 `json:"noise_range,omitempty"`
	HistogramBins  *int      `json:"histogram_bins,omitempty"`
	SplitRow       *int      `json:"split_row,omitempty"` // -1 disables the top/bottom split
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCalibrationConfig returns a CalibrationConfig with all fields unset.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// LoadCalibrationConfig loads a CalibrationConfig from a JSON file. The
// file must have a .json extension and be at most 1 MiB.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCalibrationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *CalibrationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pixel/*/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadCalibrationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set, and their combination with the
// defaults of the ones that are not.
func (c *CalibrationConfig) Validate() error {
	if c.GetRows() <= 0 || c.GetCols() <= 0 {
		return fmt.Errorf("rows and cols must be positive, got %dx%d", c.GetRows(), c.GetCols())
	}
	if c.GetInjectionMin() > c.GetInjectionMax() {
		return fmt.Errorf("injection_min %d exceeds injection_max %d", c.GetInjectionMin(), c.GetInjectionMax())
	}
	if c.GetInjectionStep() <= 0 {
		return fmt.Errorf("injection_step must be positive, got %d", c.GetInjectionStep())
	}
	if c.GetChunkSize() <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.GetChunkSize())
	}
	if c.GetMaxCubeCells() <= 0 {
		return fmt.Errorf("max_cube_cells must be positive, got %d", c.GetMaxCubeCells())
	}
	if start := c.GetRolloverStartIndex(); start < 0 {
		return fmt.Errorf("rollover_start_index must not be negative, got %d", start)
	}
	if c.SCurveGuess != nil {
		if len(c.SCurveGuess) != 3 {
			return fmt.Errorf("scurve_guess must have 3 entries, got %d", len(c.SCurveGuess))
		}
		if c.SCurveGuess[2] == 0 {
			return fmt.Errorf("scurve_guess sigma must be non-zero")
		}
	}
	if c.GetResponseMax() <= 0 {
		return fmt.Errorf("response_max must be positive, got %f", c.GetResponseMax())
	}
	if c.GetMaxIterations() <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.GetMaxIterations())
	}
	if c.GetWorkers() < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.GetWorkers())
	}
	for name, r := range map[string][]float64{"threshold_range": c.ThresholdRange, "noise_range": c.NoiseRange} {
		if r != nil && (len(r) != 2 || r[0] >= r[1]) {
			return fmt.Errorf("%s must be [low, high] with low < high, got %v", name, r)
		}
	}
	if c.GetHistogramBins() <= 0 {
		return fmt.Errorf("histogram_bins must be positive, got %d", c.GetHistogramBins())
	}
	return nil
}

// GetRows returns the matrix row count or the default.
func (c *CalibrationConfig) GetRows() int {
	if c.Rows == nil {
		return 224 // default
	}
	return *c.Rows
}

// GetCols returns the matrix column count or the default.
func (c *CalibrationConfig) GetCols() int {
	if c.Cols == nil {
		return 112 // default
	}
	return *c.Cols
}

// GetInjectionMin returns the lowest injection DAC code binned. With an
// explicit injection_list it is the list minimum.
func (c *CalibrationConfig) GetInjectionMin() int {
	if len(c.InjectionList) > 0 {
		return minOf(c.InjectionList)
	}
	if c.InjectionMin == nil {
		return 1 // default
	}
	return *c.InjectionMin
}

// GetInjectionMax returns the highest injection DAC code binned. With an
// explicit injection_list it is the list maximum.
func (c *CalibrationConfig) GetInjectionMax() int {
	if len(c.InjectionList) > 0 {
		return maxOf(c.InjectionList)
	}
	if c.InjectionMax == nil {
		return 100 // default
	}
	return *c.InjectionMax
}

func (c *CalibrationConfig) GetInjectionStep() int {
	if c.InjectionStep == nil {
		return 1 // default
	}
	return *c.InjectionStep
}

func (c *CalibrationConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 1_000_000 // default
	}
	return *c.ChunkSize
}

// GetMaxCubeCells bounds the cells of each histogram cube.
func (c *CalibrationConfig) GetMaxCubeCells() int {
	if c.MaxCubeCells == nil {
		return 1 << 28 // default
	}
	return *c.MaxCubeCells
}

func (c *CalibrationConfig) GetRolloverSlope() float64 {
	if c.RolloverSlope == nil {
		return 0.833 // default
	}
	return *c.RolloverSlope
}

func (c *CalibrationConfig) GetRolloverIntercept() float64 {
	if c.RolloverIntercept == nil {
		return -43 // default
	}
	return *c.RolloverIntercept
}

func (c *CalibrationConfig) GetRolloverStartIndex() int {
	if c.RolloverStartIndex == nil {
		return 80 // default
	}
	return *c.RolloverStartIndex
}

// GetSCurveGuess returns the s-curve seed: amplitude, mean, sigma.
func (c *CalibrationConfig) GetSCurveGuess() [3]float64 {
	if len(c.SCurveGuess) != 3 {
		return [3]float64{100, 15, 3} // default
	}
	return [3]float64{c.SCurveGuess[0], c.SCurveGuess[1], c.SCurveGuess[2]}
}

func (c *CalibrationConfig) GetResponseMax() float64 {
	if c.ResponseMax == nil {
		return 63 // default
	}
	return *c.ResponseMax
}

func (c *CalibrationConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 1000 // default
	}
	return *c.MaxIterations
}

func (c *CalibrationConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default
	}
	return *c.Workers
}

func (c *CalibrationConfig) GetThresholdRange() [2]float64 {
	if len(c.ThresholdRange) != 2 {
		return [2]float64{10, 30} // default
	}
	return [2]float64{c.ThresholdRange[0], c.ThresholdRange[1]}
}

func (c *CalibrationConfig) GetNoiseRange() [2]float64 {
	if len(c.NoiseRange) != 2 {
		return [2]float64{0, 2} // default
	}
	return [2]float64{c.NoiseRange[0], c.NoiseRange[1]}
}

func (c *CalibrationConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 50 // default
	}
	return *c.HistogramBins
}

// GetSplitRow returns the first row of the "top" half of the matrix,
// defaulting to half the rows. A negative value disables the split.
func (c *CalibrationConfig) GetSplitRow() int {
	if c.SplitRow == nil {
		return c.GetRows() / 2
	}
	return *c.SplitRow
}

// WithInjectionRange returns a copy with the scan range replaced and any
// explicit injection list cleared.
func (c *CalibrationConfig) WithInjectionRange(min, max int) *CalibrationConfig {
	out := *c
	out.InjectionList = nil
	out.InjectionMin = ptrInt(min)
	out.InjectionMax = ptrInt(max)
	return &out
}

func minOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
