// Package translation moves translatable terms between a database and
// translation files.
//
// Export and Import are the two entry points. Both pick the file format from
// the path extension before touching the database, so a bad path fails fast.
// Storage is reached only through the Opener and Store interfaces; the
// database package provides the PostgreSQL implementation.
package translation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnknownFormat is returned for a path whose extension is not a supported
// translation format.
var ErrUnknownFormat = errors.New("unrecognized translation file format")

// Term is one translatable string and its translation.
type Term struct {
	Module string
	Type   string // model, field, selection, code, ...
	Name   string // model.field or source path
	ResID  int64
	Src    string
	Value  string

	// ExternalID is the module-qualified external id ("base.main_company")
	// given in place of a numeric ResID. UpdateResIDs resolves it.
	ExternalID string
}

// Key identifies a term within a language.
func (t Term) Key() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", t.Type, t.Name, t.ResID, t.ExternalID, t.Src)
}

// ResRef renders the resource reference as written in translation files:
// the external id when set, the numeric id otherwise.
func (t Term) ResRef() string {
	if t.ExternalID != "" {
		return t.ExternalID
	}
	return strconv.FormatInt(t.ResID, 10)
}

// setResRef parses a resource reference read from a file.
func (t *Term) setResRef(ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		t.ResID = id
		return
	}
	t.ExternalID = ref
}

// Format is the on-disk encoding of a translation file.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPO  Format = "po"
	FormatPOT Format = "pot"
)

// Compression is an optional outer compression layer.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gz"
	CompressionZstd Compression = "zst"
)

// FileFormat is the format and compression derived from a path.
type FileFormat struct {
	Format      Format
	Compression Compression
}

func (f FileFormat) String() string {
	if f.Compression == CompressionNone {
		return string(f.Format)
	}
	return string(f.Format) + "." + string(f.Compression)
}

// DetectFormat derives the file format from the lowercased extension of
// path. A trailing .gz or .zst selects compression and the extension before
// it selects the format.
func DetectFormat(path string) (FileFormat, error) {
	name := strings.ToLower(filepath.Base(path))

	var ff FileFormat
	ext := filepath.Ext(name)
	switch ext {
	case ".gz":
		ff.Compression = CompressionGzip
	case ".zst":
		ff.Compression = CompressionZstd
	}
	if ff.Compression != CompressionNone {
		name = strings.TrimSuffix(name, ext)
		ext = filepath.Ext(name)
	}

	switch ext {
	case ".csv":
		ff.Format = FormatCSV
	case ".po":
		ff.Format = FormatPO
	case ".pot":
		ff.Format = FormatPOT
	default:
		return FileFormat{}, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	return ff, nil
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Relinked int64
}

// Store reads and writes terms inside one transaction on one database.
// Exactly one of Commit or Rollback ends it.
type Store interface {
	// ExportTerms returns the terms of the given modules. An empty lang
	// returns source terms with empty values. A modules list of ["all"]
	// selects every installed module.
	ExportTerms(ctx context.Context, lang string, modules []string) ([]Term, error)

	// ImportTerms writes terms for lang. Existing translations are replaced
	// only when overwrite is set.
	ImportTerms(ctx context.Context, lang string, terms []Term, overwrite bool) (ImportResult, error)

	// UpdateResIDs re-links imported terms to resource ids through the
	// external id table and returns the number of rows updated.
	UpdateResIDs(ctx context.Context) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Opener opens a Store on a named database.
type Opener interface {
	OpenTranslations(ctx context.Context, dbname string) (Store, error)
}
