package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hazardtrack/dts/internal/routing"
	"github.com/hazardtrack/dts/pkg/ltext"
)

// Sector is a shared reference record: no tenant column, visible to every
// country account. level 1 rows are top sectors, level 2 their subsectors.
type Sector struct {
	ID          string
	ParentID    *string
	Level       int
	Name        ltext.Map
	Description ltext.Map
}

// SectorView is one sector projected to a single language.
type SectorView struct {
	ID          string  `json:"id"`
	ParentID    *string `json:"parentId"`
	Level       int     `json:"level"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
}

type SectorWithSubsectors struct {
	SectorView
	Subsectors []SectorView `json:"subsectors"`
}

type SectorStore interface {
	ListByLevel(ctx context.Context, lang string, level int) ([]SectorView, error)
	ListChildren(ctx context.Context, lang string, parentID string) ([]SectorView, error)
	ByID(ctx context.Context, lang string, id string) (*SectorView, error)
}

func localizeSectors(sectors []Sector, lang string) []SectorView {
	ltext.SortByLocalized(sectors, lang, func(s Sector) ltext.Map { return s.Name })
	out := make([]SectorView, 0, len(sectors))
	for _, s := range sectors {
		out = append(out, localizeSector(s, lang))
	}
	return out
}

func localizeSector(s Sector, lang string) SectorView {
	return SectorView{
		ID:          s.ID,
		ParentID:    s.ParentID,
		Level:       s.Level,
		Name:        s.Name.Resolve(lang),
		Description: s.Description.Resolve(lang),
	}
}

// sectorsWithSubsectors fetches top sectors, then one children query per
// parent. Parent order is preserved and any child failure fails the whole
// call; no partial hierarchy is ever returned. A parent with no children
// appears with an empty list.
func sectorsWithSubsectors(ctx context.Context, store SectorStore, lang string) ([]SectorWithSubsectors, error) {
	parents, err := store.ListByLevel(ctx, lang, 1)
	if err != nil {
		return nil, err
	}
	out := make([]SectorWithSubsectors, 0, len(parents))
	for _, p := range parents {
		children, err := store.ListChildren(ctx, lang, p.ID)
		if err != nil {
			return nil, err
		}
		if children == nil {
			children = []SectorView{}
		}
		out = append(out, SectorWithSubsectors{SectorView: p, Subsectors: children})
	}
	return out, nil
}

type sectorPGStore struct {
	pool pgBeginner
}

func newSectorPGStore(pool pgBeginner) SectorStore {
	return &sectorPGStore{pool: pool}
}

func (s *sectorPGStore) ListByLevel(ctx context.Context, lang string, level int) ([]SectorView, error) {
	rows, err := s.querySectors(ctx, `
SELECT id::text, parent_id::text, level, name, COALESCE(description, '{}'::jsonb)
FROM sectors
WHERE level = $1
`, level)
	if err != nil {
		return nil, err
	}
	return localizeSectors(rows, lang), nil
}

func (s *sectorPGStore) ListChildren(ctx context.Context, lang string, parentID string) ([]SectorView, error) {
	rows, err := s.querySectors(ctx, `
SELECT id::text, parent_id::text, level, name, COALESCE(description, '{}'::jsonb)
FROM sectors
WHERE parent_id = $1::uuid
`, parentID)
	if err != nil {
		return nil, err
	}
	return localizeSectors(rows, lang), nil
}

func (s *sectorPGStore) ByID(ctx context.Context, lang string, id string) (*SectorView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var sec Sector
	err = tx.QueryRow(ctx, `
SELECT id::text, parent_id::text, level, name, COALESCE(description, '{}'::jsonb)
FROM sectors
WHERE id = $1::uuid
`, id).Scan(&sec.ID, &sec.ParentID, &sec.Level, &sec.Name, &sec.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, badRequestFromPg(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	view := localizeSector(sec, lang)
	return &view, nil
}

func (s *sectorPGStore) querySectors(ctx context.Context, sql string, args ...any) ([]Sector, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, badRequestFromPg(err)
	}
	defer rows.Close()

	var out []Sector
	for rows.Next() {
		var sec Sector
		if err := rows.Scan(&sec.ID, &sec.ParentID, &sec.Level, &sec.Name, &sec.Description); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

type sectorMemoryStore struct {
	sectors []Sector
}

func newSectorMemoryStore(sectors []Sector) SectorStore {
	return &sectorMemoryStore{sectors: append([]Sector(nil), sectors...)}
}

func (s *sectorMemoryStore) ListByLevel(_ context.Context, lang string, level int) ([]SectorView, error) {
	var match []Sector
	for _, sec := range s.sectors {
		if sec.Level == level {
			match = append(match, sec)
		}
	}
	return localizeSectors(match, lang), nil
}

func (s *sectorMemoryStore) ListChildren(_ context.Context, lang string, parentID string) ([]SectorView, error) {
	var match []Sector
	for _, sec := range s.sectors {
		if sec.ParentID != nil && *sec.ParentID == parentID {
			match = append(match, sec)
		}
	}
	return localizeSectors(match, lang), nil
}

func (s *sectorMemoryStore) ByID(_ context.Context, lang string, id string) (*SectorView, error) {
	for _, sec := range s.sectors {
		if sec.ID == id {
			view := localizeSector(sec, lang)
			return &view, nil
		}
	}
	return nil, nil
}

func handleSectorsAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store SectorStore) {
	level := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_level", "invalid level")
			return
		}
		level = n
	}

	items, err := store.ListByLevel(r.Context(), rc.Lang, level)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if items == nil {
		items = []SectorView{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleSectorChildrenAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store SectorStore) {
	parentID := strings.TrimSpace(r.URL.Query().Get("parentId"))
	if parentID == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_parent_id", "parentId required")
		return
	}

	items, err := store.ListChildren(r.Context(), rc.Lang, parentID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if items == nil {
		items = []SectorView{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleSectorsWithSubsectorsAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store SectorStore) {
	items, err := sectorsWithSubsectors(r.Context(), store, rc.Lang)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleSectorItemAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store SectorStore) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_id", "id required")
		return
	}

	item, err := store.ByID(r.Context(), rc.Lang, id)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if item == nil {
		msg := rc.T("sectors.no_sector_found", "No sector found", nil)
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusNotFound, "not_found", msg)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(item)
}
