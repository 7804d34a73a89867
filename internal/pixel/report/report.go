package report

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/pixelcal/internal/fsutil"
	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/security"
)

// Writer produces report files. The zero value writes to the OS
// filesystem.
type Writer struct {
	FS fsutil.FileSystem
}

// Write summarises cals and writes summary.json, one PNG histogram per
// distribution and threshold_map.html into dir. It returns the summary
// and the paths written.
func (w Writer) Write(dir, title string, cals []fit.Calibration, rows, cols int, o Options) (Summary, []string, error) {
	fsys := w.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	o = o.withDefaults()
	s := Summarize(cals, rows, o)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return s, nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var written []string
	put := func(name, ext string, data []byte) error {
		path, err := security.FileInDirectory(dir, name, ext)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(fsys, path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	summary, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return s, nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := put("summary", ".json", summary); err != nil {
		return s, written, err
	}

	for _, d := range append(append([]Distribution(nil), s.Threshold...), s.Noise...) {
		logDistribution(d)
		png, err := d.PNG()
		if err != nil {
			return s, written, err
		}
		if err := put(d.Name(), ".png", png); err != nil {
			return s, written, err
		}
	}

	html, err := ThresholdMap(cals, rows, cols, o.ThresholdRange, title)
	if err != nil {
		return s, written, err
	}
	if err := put("threshold_map", ".html", html); err != nil {
		return s, written, err
	}

	monitoring.Logf("[report] wrote %d files to %s", len(written), dir)
	return s, written, nil
}

func logDistribution(d Distribution) {
	if d.Err != nil {
		monitoring.Logf("[report] %s %s: n=%d mean=%.3f std=%.3f (gauss fit failed: %v)",
			d.Quantity, d.Region, d.Count, d.Mean, d.Std, d.Err)
		return
	}
	monitoring.Logf("[report] %s %s: n=%d mean=%.3f std=%.3f gauss mean=%.3f sigma=%.3f",
		d.Quantity, d.Region, d.Count, d.Mean, d.Std, d.Gauss[1], d.Gauss[2])
}
