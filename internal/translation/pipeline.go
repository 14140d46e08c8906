package translation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/erpserver/internal/logging"
)

// AllModules selects every installed module on export.
const AllModules = "all"

// ExportRequest describes one translation export.
type ExportRequest struct {
	Database string
	Language string // empty exports a template for a new language
	Modules  []string
	Path     string
}

// ImportRequest describes one translation import.
type ImportRequest struct {
	Database  string
	Language  string
	Path      string
	Overwrite bool
}

// Encode writes terms to w in format f.
func Encode(w io.Writer, f Format, lang string, terms []Term) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, terms)
	case FormatPO:
		return writePO(w, lang, terms, false)
	case FormatPOT:
		return writePO(w, lang, terms, true)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// Decode reads every term from r in format f.
func Decode(r io.Reader, f Format) ([]Term, error) {
	switch f {
	case FormatCSV:
		return readCSV(r)
	case FormatPO, FormatPOT:
		return readPO(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// Export writes the terms of req.Modules in req.Language to req.Path. The
// store is only read, and its transaction is rolled back afterwards.
func Export(ctx context.Context, opener Opener, req ExportRequest) error {
	ff, err := DetectFormat(req.Path)
	if err != nil {
		return err
	}
	modules := req.Modules
	if len(modules) == 0 {
		modules = []string{AllModules}
	}

	log := logging.Named("translation").With("db", req.Database, "path", req.Path, "format", ff.String())
	if req.Language != "" {
		log.Info("writing translation file for language " + req.Language)
	} else {
		log.Info("writing translation file for new language")
	}

	store, err := opener.OpenTranslations(ctx, req.Database)
	if err != nil {
		return fmt.Errorf("open %s: %w", req.Database, err)
	}
	defer store.Rollback(context.WithoutCancel(ctx))

	terms, err := store.ExportTerms(ctx, req.Language, modules)
	if err != nil {
		return fmt.Errorf("export terms: %w", err)
	}

	if err := writeFile(req.Path, ff, req.Language, terms); err != nil {
		return err
	}

	log.Info("translation file written", "terms", len(terms), "modules", strings.Join(modules, ","))
	return nil
}

func writeFile(path string, ff FileFormat, lang string, terms []Term) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create translation file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close translation file: %w", cerr)
		}
	}()

	w, err := compress(f, ff.Compression)
	if err != nil {
		return err
	}
	if err := Encode(w, ff.Format, lang, terms); err != nil {
		w.Close()
		return fmt.Errorf("encode %s: %w", ff.Format, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", ff.Compression, err)
	}
	return nil
}

// Import loads req.Path into req.Language, re-links resource ids and commits.
// Any failure rolls the store back.
func Import(ctx context.Context, opener Opener, req ImportRequest) (ImportResult, error) {
	ff, err := DetectFormat(req.Path)
	if err != nil {
		return ImportResult{}, err
	}

	batch := uuid.New()
	log := logging.Named("translation").With(
		"db", req.Database,
		"path", req.Path,
		"lang", req.Language,
		"batch", batch.String(),
	)
	start := time.Now()
	log.Info("loading translation file", "format", ff.String(), "overwrite", req.Overwrite)

	terms, size, err := readFile(req.Path, ff)
	if err != nil {
		return ImportResult{}, err
	}

	store, err := opener.OpenTranslations(ctx, req.Database)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open %s: %w", req.Database, err)
	}

	result, err := importTerms(ctx, store, req, terms)
	if err != nil {
		if rbErr := store.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return ImportResult{}, err
	}

	log.Info("translation file loaded",
		"bytes", size,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"relinked", result.Relinked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func importTerms(ctx context.Context, store Store, req ImportRequest, terms []Term) (ImportResult, error) {
	result, err := store.ImportTerms(ctx, req.Language, terms, req.Overwrite)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import terms: %w", err)
	}
	relinked, err := store.UpdateResIDs(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("update resource ids: %w", err)
	}
	result.Relinked = relinked
	if err := store.Commit(ctx); err != nil {
		return ImportResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func readFile(path string, ff FileFormat) ([]Term, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open translation file: %w", err)
	}
	defer f.Close()

	counter := NewCountingReader(f)
	r, release, err := decompress(counter, ff.Compression)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	terms, err := Decode(NewBOMSkippingReader(r), ff.Format)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", ff.Format, err)
	}
	return terms, counter.BytesRead, nil
}
