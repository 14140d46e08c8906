package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/erpserver/internal/translation"
)

// OpenTranslations returns a translation store bound to one transaction on
// a fresh handle to name. Commit or Rollback ends the transaction and
// releases the handle.
func (m *Manager) OpenTranslations(ctx context.Context, name string) (translation.Store, error) {
	h, err := m.Acquire(ctx, name, ModuleUpdate{})
	if err != nil {
		return nil, err
	}
	tx, err := h.Begin(ctx)
	if err != nil {
		h.Release()
		return nil, err
	}
	return &translationStore{handle: h, tx: tx}, nil
}

type translationStore struct {
	handle *Handle
	tx     pgx.Tx
}

var _ translation.Store = (*translationStore)(nil)

// splitExternalID splits "module.name". An id without a module belongs to
// the module of the term.
func splitExternalID(id, defaultModule string) (string, string) {
	if mod, name, ok := strings.Cut(id, "."); ok {
		return mod, name
	}
	return defaultModule, id
}

func (s *translationStore) ExportTerms(ctx context.Context, lang string, modules []string) ([]translation.Term, error) {
	names, all := selector(modules)

	rows, err := s.tx.Query(ctx, `
		WITH src AS (
			SELECT DISTINCT module, type, name, res_id, src
			FROM ir_translation
			WHERE ($2 AND module IN (SELECT name FROM ir_module_module WHERE state = 'installed'))
			   OR module = ANY($1)
		)
		SELECT s.module, s.type, s.name, s.res_id, s.src,
		       COALESCE(tr.value, ''),
		       COALESCE(d.module || '.' || d.name, '')
		FROM src s
		LEFT JOIN LATERAL (
			SELECT value FROM ir_translation t
			WHERE t.lang = $3 AND $3 <> ''
			  AND t.type = s.type AND t.name = s.name
			  AND t.res_id = s.res_id AND t.src = s.src
			ORDER BY t.id DESC
			LIMIT 1
		) tr ON true
		LEFT JOIN LATERAL (
			SELECT module, name FROM ir_model_data md
			WHERE s.type = 'model' AND s.res_id <> 0
			  AND md.model = split_part(s.name, ',', 1)
			  AND md.res_id = s.res_id
			ORDER BY md.id
			LIMIT 1
		) d ON true
		ORDER BY s.module, s.type, s.name, s.res_id, s.src`, names, all, lang)
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}

	var terms []translation.Term
	var t translation.Term
	_, err = pgx.ForEachRow(rows, []any{&t.Module, &t.Type, &t.Name, &t.ResID, &t.Src, &t.Value, &t.ExternalID}, func() error {
		terms = append(terms, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read terms: %w", err)
	}
	return terms, nil
}

func (s *translationStore) ImportTerms(ctx context.Context, lang string, terms []translation.Term, overwrite bool) (translation.ImportResult, error) {
	var res translation.ImportResult

	for _, t := range terms {
		var imdModule, imdName *string
		if t.ExternalID != "" {
			mod, name := splitExternalID(t.ExternalID, t.Module)
			imdModule, imdName = &mod, &name
		}

		var (
			id       int64
			existing string
		)
		err := s.tx.QueryRow(ctx, `
			SELECT id, value FROM ir_translation
			WHERE lang = $1 AND type = $2 AND name = $3 AND src = $4
			  AND ((imd_name IS NULL AND $7::text IS NULL AND res_id = $5)
			       OR (imd_module IS NOT DISTINCT FROM $6 AND imd_name IS NOT DISTINCT FROM $7 AND $7::text IS NOT NULL))
			ORDER BY id
			LIMIT 1
			FOR UPDATE`,
			lang, t.Type, t.Name, t.Src, t.ResID, imdModule, imdName,
		).Scan(&id, &existing)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_, err = s.tx.Exec(ctx, `
				INSERT INTO ir_translation (lang, module, type, name, res_id, src, value, imd_module, imd_name)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				lang, t.Module, t.Type, t.Name, t.ResID, t.Src, t.Value, imdModule, imdName)
			if err != nil {
				return res, fmt.Errorf("insert term %q: %w", t.Src, err)
			}
			res.Inserted++

		case err != nil:
			return res, fmt.Errorf("look up term %q: %w", t.Src, err)

		case existing != "" && !overwrite:
			res.Skipped++

		default:
			if _, err := s.tx.Exec(ctx,
				`UPDATE ir_translation SET value = $2, module = $3 WHERE id = $1`,
				id, t.Value, t.Module); err != nil {
				return res, fmt.Errorf("update term %q: %w", t.Src, err)
			}
			res.Updated++
		}
	}
	return res, nil
}

func (s *translationStore) UpdateResIDs(ctx context.Context) (int64, error) {
	tag, err := s.tx.Exec(ctx, `
		UPDATE ir_translation t
		SET res_id = d.res_id
		FROM ir_model_data d
		WHERE t.imd_name IS NOT NULL
		  AND t.res_id = 0
		  AND d.module = t.imd_module
		  AND d.name = t.imd_name`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *translationStore) Commit(ctx context.Context) error {
	defer s.handle.Release()
	return s.tx.Commit(ctx)
}

func (s *translationStore) Rollback(ctx context.Context) error {
	defer s.handle.Release()
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// RelinkTranslations resolves the resource ids of translations imported by
// external id once the referenced records exist. It is scheduled as the
// "ir.translation.update_res_ids" job.
func (m *Manager) RelinkTranslations(ctx context.Context, dbname string) error {
	store, err := m.OpenTranslations(ctx, dbname)
	if err != nil {
		return err
	}
	n, err := store.UpdateResIDs(ctx)
	if err != nil {
		return errors.Join(fmt.Errorf("relink translations: %w", err), store.Rollback(context.WithoutCancel(ctx)))
	}
	if err := store.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if n > 0 {
		m.logger.Info("translations relinked", "db", dbname, "rows", n)
	}
	return nil
}
