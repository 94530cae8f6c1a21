package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hazardtrack/dts/internal/routing"
	"github.com/hazardtrack/dts/pkg/ltext"
)

// Hazard taxonomy (HIP): type -> cluster -> hazard. Shared reference data,
// never tenant-scoped.
type HipType struct {
	ID   string
	Name ltext.Map
}

type HipCluster struct {
	ID     string
	TypeID string
	Name   ltext.Map
}

type HipHazard struct {
	ID          string
	ClusterID   string
	Name        ltext.Map
	Description ltext.Map
}

type HipTypeView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type HipClusterView struct {
	ID     string `json:"id"`
	TypeID string `json:"typeId"`
	Name   string `json:"name"`
}

type HipHazardView struct {
	ID          string `json:"id"`
	ClusterID   string `json:"clusterId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ClusterName string `json:"clusterName,omitempty"`
	TypeName    string `json:"typeName,omitempty"`
}

type HipClusterWithHazards struct {
	HipClusterView
	Hazards []HipHazardView `json:"hazards"`
}

type HipStore interface {
	ListTypes(ctx context.Context, lang string) ([]HipTypeView, error)
	ListClustersByType(ctx context.Context, lang string, typeID string) ([]HipClusterView, error)
	ListHazardsByCluster(ctx context.Context, lang string, clusterID string) ([]HipHazardView, error)
	// HazardByID joins cluster and type names into the view; nil when absent.
	HazardByID(ctx context.Context, lang string, id string) (*HipHazardView, error)
}

// hipHierarchy builds the cluster-with-hazards tree for one hazard type.
// Clusters come back ordered by localized name; one hazards query per
// cluster, any failure aborts the whole call.
func hipHierarchy(ctx context.Context, store HipStore, lang string, typeID string) ([]HipClusterWithHazards, error) {
	clusters, err := store.ListClustersByType(ctx, lang, typeID)
	if err != nil {
		return nil, err
	}
	out := make([]HipClusterWithHazards, 0, len(clusters))
	for _, c := range clusters {
		hazards, err := store.ListHazardsByCluster(ctx, lang, c.ID)
		if err != nil {
			return nil, err
		}
		if hazards == nil {
			hazards = []HipHazardView{}
		}
		out = append(out, HipClusterWithHazards{HipClusterView: c, Hazards: hazards})
	}
	return out, nil
}

type hipPGStore struct {
	pool pgBeginner
}

func newHipPGStore(pool pgBeginner) HipStore {
	return &hipPGStore{pool: pool}
}

func (s *hipPGStore) ListTypes(ctx context.Context, lang string) ([]HipTypeView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `SELECT id::text, name FROM hip_types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []HipType
	for rows.Next() {
		var t HipType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ltext.SortByLocalized(types, lang, func(t HipType) ltext.Map { return t.Name })
	out := make([]HipTypeView, 0, len(types))
	for _, t := range types {
		out = append(out, HipTypeView{ID: t.ID, Name: t.Name.Resolve(lang)})
	}
	return out, nil
}

func (s *hipPGStore) ListClustersByType(ctx context.Context, lang string, typeID string) ([]HipClusterView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, type_id::text, name
FROM hip_clusters
WHERE type_id = $1::uuid
`, typeID)
	if err != nil {
		return nil, badRequestFromPg(err)
	}
	defer rows.Close()

	var clusters []HipCluster
	for rows.Next() {
		var c HipCluster
		if err := rows.Scan(&c.ID, &c.TypeID, &c.Name); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ltext.SortByLocalized(clusters, lang, func(c HipCluster) ltext.Map { return c.Name })
	out := make([]HipClusterView, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, HipClusterView{ID: c.ID, TypeID: c.TypeID, Name: c.Name.Resolve(lang)})
	}
	return out, nil
}

func (s *hipPGStore) ListHazardsByCluster(ctx context.Context, lang string, clusterID string) ([]HipHazardView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, cluster_id::text, name, COALESCE(description, '{}'::jsonb)
FROM hip_hazards
WHERE cluster_id = $1::uuid
`, clusterID)
	if err != nil {
		return nil, badRequestFromPg(err)
	}
	defer rows.Close()

	var hazards []HipHazard
	for rows.Next() {
		var h HipHazard
		if err := rows.Scan(&h.ID, &h.ClusterID, &h.Name, &h.Description); err != nil {
			return nil, err
		}
		hazards = append(hazards, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	ltext.SortByLocalized(hazards, lang, func(h HipHazard) ltext.Map { return h.Name })
	out := make([]HipHazardView, 0, len(hazards))
	for _, h := range hazards {
		out = append(out, HipHazardView{
			ID:          h.ID,
			ClusterID:   h.ClusterID,
			Name:        h.Name.Resolve(lang),
			Description: h.Description.Resolve(lang),
		})
	}
	return out, nil
}

func (s *hipPGStore) HazardByID(ctx context.Context, lang string, id string) (*HipHazardView, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var h HipHazard
	var clusterName, typeName ltext.Map
	err = tx.QueryRow(ctx, `
SELECT h.id::text, h.cluster_id::text, h.name, COALESCE(h.description, '{}'::jsonb),
       c.name, t.name
FROM hip_hazards h
JOIN hip_clusters c ON c.id = h.cluster_id
JOIN hip_types t ON t.id = c.type_id
WHERE h.id = $1::uuid
`, id).Scan(&h.ID, &h.ClusterID, &h.Name, &h.Description, &clusterName, &typeName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, badRequestFromPg(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &HipHazardView{
		ID:          h.ID,
		ClusterID:   h.ClusterID,
		Name:        h.Name.Resolve(lang),
		Description: h.Description.Resolve(lang),
		ClusterName: clusterName.Resolve(lang),
		TypeName:    typeName.Resolve(lang),
	}, nil
}

type hipMemoryStore struct {
	types    []HipType
	clusters []HipCluster
	hazards  []HipHazard
}

func newHipMemoryStore(types []HipType, clusters []HipCluster, hazards []HipHazard) HipStore {
	return &hipMemoryStore{
		types:    append([]HipType(nil), types...),
		clusters: append([]HipCluster(nil), clusters...),
		hazards:  append([]HipHazard(nil), hazards...),
	}
}

func (s *hipMemoryStore) ListTypes(_ context.Context, lang string) ([]HipTypeView, error) {
	types := append([]HipType(nil), s.types...)
	ltext.SortByLocalized(types, lang, func(t HipType) ltext.Map { return t.Name })
	out := make([]HipTypeView, 0, len(types))
	for _, t := range types {
		out = append(out, HipTypeView{ID: t.ID, Name: t.Name.Resolve(lang)})
	}
	return out, nil
}

func (s *hipMemoryStore) ListClustersByType(_ context.Context, lang string, typeID string) ([]HipClusterView, error) {
	var match []HipCluster
	for _, c := range s.clusters {
		if c.TypeID == typeID {
			match = append(match, c)
		}
	}
	ltext.SortByLocalized(match, lang, func(c HipCluster) ltext.Map { return c.Name })
	out := make([]HipClusterView, 0, len(match))
	for _, c := range match {
		out = append(out, HipClusterView{ID: c.ID, TypeID: c.TypeID, Name: c.Name.Resolve(lang)})
	}
	return out, nil
}

func (s *hipMemoryStore) ListHazardsByCluster(_ context.Context, lang string, clusterID string) ([]HipHazardView, error) {
	var match []HipHazard
	for _, h := range s.hazards {
		if h.ClusterID == clusterID {
			match = append(match, h)
		}
	}
	ltext.SortByLocalized(match, lang, func(h HipHazard) ltext.Map { return h.Name })
	out := make([]HipHazardView, 0, len(match))
	for _, h := range match {
		out = append(out, HipHazardView{
			ID:          h.ID,
			ClusterID:   h.ClusterID,
			Name:        h.Name.Resolve(lang),
			Description: h.Description.Resolve(lang),
		})
	}
	return out, nil
}

func (s *hipMemoryStore) HazardByID(_ context.Context, lang string, id string) (*HipHazardView, error) {
	for _, h := range s.hazards {
		if h.ID != id {
			continue
		}
		view := HipHazardView{
			ID:          h.ID,
			ClusterID:   h.ClusterID,
			Name:        h.Name.Resolve(lang),
			Description: h.Description.Resolve(lang),
		}
		for _, c := range s.clusters {
			if c.ID == h.ClusterID {
				view.ClusterName = c.Name.Resolve(lang)
				for _, t := range s.types {
					if t.ID == c.TypeID {
						view.TypeName = t.Name.Resolve(lang)
					}
				}
			}
		}
		return &view, nil
	}
	return nil, nil
}

func handleHipTypesAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store HipStore) {
	items, err := store.ListTypes(r.Context(), rc.Lang)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if items == nil {
		items = []HipTypeView{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleHipHierarchyAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store HipStore) {
	typeID := strings.TrimSpace(r.URL.Query().Get("typeId"))
	if typeID == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_type_id", "typeId required")
		return
	}

	clusters, err := hipHierarchy(r.Context(), store, rc.Lang, typeID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"items": clusters})
}

func handleHipHazardItemAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, store HipStore) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_id", "id required")
		return
	}

	item, err := store.HazardByID(r.Context(), rc.Lang, id)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if item == nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusNotFound, "not_found", "hazard not found")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(item)
}
