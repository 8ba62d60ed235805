package scene

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultExportPath is the default destination for the pose table.
const DefaultExportPath = "poses.csv"

// ExportPoses writes one CSV row per view to path, in the order given
// (callers pass AlignmentResult.PoseRecords, which is view-id order).
// The write is all-or-nothing: rows go to a temp file in the destination
// directory which is renamed into place only after a successful flush and
// sync, so a failure never leaves a partial table behind.
func ExportPoses(path string, records []PoseRecord) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".poses-*.csv")
	if err != nil {
		return fmt.Errorf("creating pose table: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"view_label", "focal", "pose"}); err != nil {
		return fmt.Errorf("writing pose table header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Label,
			strconv.FormatFloat(rec.Focal, 'g', -1, 64),
			rec.Pose.String(),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing pose row for %s: %w", rec.Label, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing pose table: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing pose table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing pose table: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publishing pose table: %w", err)
	}
	tmpName = "" // rename succeeded; nothing to clean up

	return nil
}

// ReadPoses parses a table written by ExportPoses. The pipeline itself is
// write-only; this exists for verification and round-trip checks.
func ReadPoses(path string) ([]PoseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pose table: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading pose table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("pose table %s is empty", path)
	}

	records := make([]PoseRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 3 {
			return nil, fmt.Errorf("pose table row %d: want 3 fields, got %d", i+1, len(row))
		}
		focal, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("pose table row %d: parsing focal: %w", i+1, err)
		}
		pose, err := ParsePose(row[2])
		if err != nil {
			return nil, fmt.Errorf("pose table row %d: %w", i+1, err)
		}
		records = append(records, PoseRecord{Label: row[0], Focal: focal, Pose: pose})
	}
	return records, nil
}
