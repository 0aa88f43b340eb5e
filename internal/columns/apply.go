package columns

import (
	"fmt"
	"io"
	"os"

	"surveyboard/internal"
)

// Collision records a column that could not take its target technical name
// because an earlier column, or the respondent column, already had it.
type Collision struct {
	Original string `json:"original"`
	Target   string `json:"target"`
	Kept     string `json:"kept"`
}

type ApplyReport struct {
	Source     internal.MappingSource `json:"source"`
	Renamed    int                    `json:"renamed"`
	Unmapped   []string               `json:"unmapped"`
	Collisions []Collision            `json:"collisions"`
	// Unsluggable lists headers with no usable characters; they keep their
	// original header.
	Unsluggable []string `json:"unsluggable"`
}

// Apply renames the table's columns. With a non-empty mapping only columns
// listed in it are renamed and the rest keep their header. Without one every
// column except respondentColumn is slugified. Columns and rows keep their
// order; on a name collision the first column wins and the later one keeps
// its original header (suffixed _2, _3... if that is taken too). Without a
// mapping the respondent column keeps its name even when an earlier header
// slugifies to it.
func Apply(t *internal.Table, m *Mapping, respondentColumn string) (*internal.Table, ApplyReport) {
	report := ApplyReport{Source: internal.MappingAuto, Unmapped: []string{}, Collisions: []Collision{}, Unsluggable: []string{}}
	useMapping := m.Len() > 0
	if useMapping {
		report.Source = m.Source
	}

	targets := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		switch {
		case useMapping:
			if e, ok := m.Lookup(col); ok {
				targets[i] = e.TechnicalName
			} else {
				targets[i] = col
				report.Unmapped = append(report.Unmapped, col)
			}
		case col == respondentColumn:
			targets[i] = col
		default:
			targets[i] = Slugify(col)
		}
	}

	taken := map[string]struct{}{}
	reserved := -1
	if !useMapping && respondentColumn != "" {
		reserved = t.Index(respondentColumn)
		if reserved >= 0 {
			taken[respondentColumn] = struct{}{}
		}
	}

	final := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		target := targets[i]
		if i == reserved {
			final[i] = target
			continue
		}
		if target == "" {
			kept := uniqueName(col, taken)
			taken[kept] = struct{}{}
			final[i] = kept
			report.Unsluggable = append(report.Unsluggable, col)
			internal.DefaultLogger.Warn("column %q has no technical name, kept as %q", col, kept)
			continue
		}
		if _, used := taken[target]; !used {
			taken[target] = struct{}{}
			final[i] = target
			if target != col {
				report.Renamed++
			}
			continue
		}
		kept := uniqueName(col, taken)
		taken[kept] = struct{}{}
		final[i] = kept
		report.Collisions = append(report.Collisions, Collision{Original: col, Target: target, Kept: kept})
		internal.DefaultLogger.Warn("column %q: technical name %q already used, kept as %q", col, target, kept)
	}

	return t.WithColumns(final), report
}

func uniqueName(base string, taken map[string]struct{}) string {
	if base == "" {
		base = "column"
	}
	if _, used := taken[base]; !used {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if _, used := taken[candidate]; !used {
			return candidate
		}
	}
}

// Dictionary describes the applied renames column by column: the original
// header, the name it ended up with, and label/category from the mapping when
// the column was mapped (the raw header and no category otherwise).
func Dictionary(original *internal.Table, renamed *internal.Table, m *Mapping) []internal.MappingEntry {
	out := make([]internal.MappingEntry, 0, len(original.Columns))
	for i, col := range original.Columns {
		entry := internal.MappingEntry{OriginalHeader: col, TechnicalName: renamed.Columns[i], PublicLabel: col}
		if e, ok := m.Lookup(col); ok && e.TechnicalName == renamed.Columns[i] {
			entry.PublicLabel = e.PublicLabel
			entry.Category = e.Category
		}
		out = append(out, entry)
	}
	return out
}

// ResolveMapping picks the mapping for a session: an uploaded table first,
// then the local file, then none. Load failures are logged and fall through;
// a nil mapping means automatic slug names.
func ResolveMapping(upload io.Reader, localPath string) (*Mapping, internal.MappingSource) {
	if upload != nil {
		m, err := LoadMapping(upload)
		if err == nil {
			m.Source = internal.MappingUpload
			return m, internal.MappingUpload
		}
		internal.DefaultLogger.Warn("uploaded mapping unreadable, trying local file: %v", err)
	}

	if localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			m, err := LoadMappingFile(localPath)
			if err == nil {
				return m, internal.MappingLocal
			}
			internal.DefaultLogger.Error("%s found but unreadable, using automatic names: %v", localPath, err)
		}
	}

	internal.DefaultLogger.Info("no mapping table, using automatic technical names")
	return nil, internal.MappingAuto
}
