package ledger

import (
	_ "embed"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

// ErrSchema marks a ledger whose header lacks a required column. It is fatal:
// the run aborts before anything is written.
var ErrSchema = eris.New("ledger: schema error")

// Table names in the schema manifest.
const (
	TableLocations = "locations"
	TableChecks    = "checks"
)

// TableSchema is the versioned column history of one ledger table.
type TableSchema struct {
	Name       string          `yaml:"-"`
	PrimaryKey string          `yaml:"primary_key"`
	Required   []string        `yaml:"required"`
	Versions   []SchemaVersion `yaml:"versions"`
}

// SchemaVersion lists the columns introduced by one schema version.
type SchemaVersion struct {
	Version int      `yaml:"version"`
	Added   []string `yaml:"added"`
}

// Migration describes how a file header relates to the latest schema.
type Migration struct {
	Table       string
	FromVersion int // 0 for a file that does not exist yet
	ToVersion   int
	Added       []string // columns filled with empty defaults
	Unknown     []string // columns outside the schema, written back after it
}

// Changed reports whether writing the table will alter its column set.
// Unknown columns survive a rewrite and do not count.
func (m Migration) Changed() bool {
	return m.FromVersion != m.ToVersion || len(m.Added) > 0
}

// Latest returns the current schema version number.
func (s *TableSchema) Latest() int {
	if len(s.Versions) == 0 {
		return 0
	}
	return s.Versions[len(s.Versions)-1].Version
}

// Columns returns every column of the latest version, in introduction order.
func (s *TableSchema) Columns() []string {
	var cols []string
	for _, v := range s.Versions {
		cols = append(cols, v.Added...)
	}
	return cols
}

// Migrate checks header against the schema. Missing required columns yield
// ErrSchema; otherwise the returned Migration lists the columns that will be
// added and the unknown columns that are carried through unchanged.
func (s *TableSchema) Migrate(header []string) (Migration, error) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	for _, col := range s.Required {
		if !present[col] {
			return Migration{}, eris.Wrapf(ErrSchema, "%s: missing required column %q", s.Name, col)
		}
	}

	m := Migration{Table: s.Name, ToVersion: s.Latest()}

	// The file is at the highest version whose columns, and those of every
	// earlier version, are all present.
	complete := true
	for _, v := range s.Versions {
		for _, col := range v.Added {
			if !present[col] {
				complete = false
				m.Added = append(m.Added, col)
			}
		}
		if complete {
			m.FromVersion = v.Version
		}
	}
	// An existing file with a partial first version still counts as
	// version 1; only a missing file is version 0.
	if m.FromVersion == 0 && len(s.Versions) > 0 {
		m.FromVersion = s.Versions[0].Version
	}

	known := make(map[string]bool)
	for _, col := range s.Columns() {
		known[col] = true
	}
	for _, h := range header {
		if !known[h] {
			m.Unknown = append(m.Unknown, h)
		}
	}
	return m, nil
}

type manifest struct {
	Tables map[string]*TableSchema `yaml:"tables"`
}

var (
	schemaOnce sync.Once
	schemas    map[string]*TableSchema
	schemaErr  error
)

// Schema returns the parsed schema for the named table.
func Schema(table string) (*TableSchema, error) {
	schemaOnce.Do(func() {
		var m manifest
		if err := yaml.Unmarshal(schemaYAML, &m); err != nil {
			schemaErr = eris.Wrap(err, "ledger: parse schema manifest")
			return
		}
		for name, ts := range m.Tables {
			ts.Name = name
			slices.SortFunc(ts.Versions, func(a, b SchemaVersion) int { return a.Version - b.Version })
		}
		schemas = m.Tables
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	ts, ok := schemas[table]
	if !ok {
		return nil, eris.Errorf("ledger: unknown table %q", table)
	}
	return ts, nil
}
