package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hazardtrack/dts/internal/routing"
	"github.com/hazardtrack/dts/modules/records/domain/fieldsdef"
	"github.com/hazardtrack/dts/pkg/httperr"
	"github.com/hazardtrack/dts/pkg/uuidv7"
)

const (
	listLimitDefault = 50
	listLimitMax     = 100
)

// RecordUpdate is one partial update in a batch.
type RecordUpdate struct {
	ID     string
	Fields map[string]any
}

// batchItemError pins a per-field error map to the offending batch index.
// The whole batch rolls back when one surfaces.
type batchItemError struct {
	Index int
	Errs  map[string][]string
}

func (e *batchItemError) Error() string {
	return fmt.Sprintf("batch item %d failed", e.Index)
}

func notFoundItemError(index int) *batchItemError {
	return &batchItemError{Index: index, Errs: map[string][]string{"id": {"record not found"}}}
}

// RecordStore is the tenant-scoped persistence contract the generic CRUD
// handlers run against. Batch operations are all-or-nothing: one failing
// item rolls back the whole batch.
type RecordStore interface {
	CreateBatch(ctx context.Context, tenantID string, items []map[string]any) ([]string, error)
	UpdateBatch(ctx context.Context, tenantID string, updates []RecordUpdate) error
	DeleteBatch(ctx context.Context, tenantID string, ids []string) error
	GetByID(ctx context.Context, tenantID string, id string) (map[string]any, error)
	ListPage(ctx context.Context, tenantID string, offset int, limit int) ([]map[string]any, int, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// entityAPI parameterizes the generic operation set for one entity.
type entityAPI struct {
	base  string
	defs  func(rc reqCtx, tenant Tenant) fieldsdef.Defs
	store RecordStore
	// normalize runs before validation (enum mutual exclusion and the like).
	normalize func(fields map[string]any)
	// extraValidate runs after kind validation on the cleaned fields.
	extraValidate func(fields map[string]any) map[string][]string
}

type itemResult struct {
	ID     *string             `json:"id"`
	Errors map[string][]string `json:"errors,omitempty"`
}

type batchResponse struct {
	OK    bool         `json:"ok"`
	Res   []itemResult `json:"res"`
	Error string       `json:"error,omitempty"`
}

func decodeArrayBody(r *http.Request) ([]map[string]any, bool) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, obj)
	}
	return items, true
}

func (e entityAPI) validateItem(item map[string]any, defs fieldsdef.Defs, requireRequired bool) (map[string]any, map[string][]string) {
	if e.normalize != nil {
		e.normalize(item)
	}
	clean, errs := fieldsdef.Validate(item, defs, requireRequired)
	if errs != nil {
		return nil, errs
	}
	if e.extraValidate != nil {
		if extra := e.extraValidate(clean); len(extra) > 0 {
			return nil, extra
		}
	}
	return clean, nil
}

// handleRecordAddAPI accepts a JSON array of new records. Every item is
// validated before anything is persisted; the first failing item aborts
// the request and nothing is written.
func handleRecordAddAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	items, ok := decodeArrayBody(r)
	if !ok {
		routing.WriteJSON(w, http.StatusBadRequest, batchResponse{OK: false, Res: []itemResult{}, Error: "Data must be an array of objects"})
		return
	}

	defs := e.defs(rc, tenant)
	cleaned := make([]map[string]any, 0, len(items))
	var res []itemResult
	for _, item := range items {
		clean, errs := e.validateItem(item, defs, true)
		if errs != nil {
			res = append(res, itemResult{ID: nil, Errors: errs})
			routing.WriteJSON(w, http.StatusUnprocessableEntity, batchResponse{OK: false, Res: res})
			return
		}
		res = append(res, itemResult{ID: nil})
		cleaned = append(cleaned, clean)
	}

	ids, err := e.store.CreateBatch(r.Context(), tenant.ID, cleaned)
	if err != nil {
		writeBatchStoreError(w, r, err)
		return
	}

	out := make([]itemResult, 0, len(ids))
	for i := range ids {
		id := ids[i]
		out = append(out, itemResult{ID: &id})
	}
	routing.WriteJSON(w, http.StatusOK, batchResponse{OK: true, Res: out})
}

// handleRecordUpdateAPI accepts an array of partial updates, each carrying
// an id. A missing record under the caller's tenant is NotFound whether the
// id never existed or belongs to another tenant.
func handleRecordUpdateAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	items, ok := decodeArrayBody(r)
	if !ok {
		routing.WriteJSON(w, http.StatusBadRequest, batchResponse{OK: false, Res: []itemResult{}, Error: "Data must be an array of objects"})
		return
	}

	defs := e.defs(rc, tenant)
	updates := make([]RecordUpdate, 0, len(items))
	var res []itemResult
	for _, item := range items {
		id, _ := item["id"].(string)
		if strings.TrimSpace(id) == "" {
			res = append(res, itemResult{Errors: map[string][]string{"form": {"id is required"}}})
			routing.WriteJSON(w, http.StatusUnprocessableEntity, batchResponse{OK: false, Res: res})
			return
		}
		delete(item, "id")

		clean, errs := e.validateItem(item, defs, false)
		if errs != nil {
			res = append(res, itemResult{Errors: errs})
			routing.WriteJSON(w, http.StatusUnprocessableEntity, batchResponse{OK: false, Res: res})
			return
		}
		res = append(res, itemResult{})
		updates = append(updates, RecordUpdate{ID: id, Fields: clean})
	}

	if err := e.store.UpdateBatch(r.Context(), tenant.ID, updates); err != nil {
		writeBatchStoreError(w, r, err)
		return
	}
	routing.WriteJSON(w, http.StatusOK, batchResponse{OK: true, Res: res})
}

// handleRecordDeleteAPI deletes by id. Deleting an id that is already gone
// reports NotFound so callers can tell "already gone" from "just deleted".
func handleRecordDeleteAPI(w http.ResponseWriter, r *http.Request, _ reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	items, ok := decodeArrayBody(r)
	if !ok {
		routing.WriteJSON(w, http.StatusBadRequest, batchResponse{OK: false, Res: []itemResult{}, Error: "Data must be an array of objects"})
		return
	}

	ids := make([]string, 0, len(items))
	var res []itemResult
	for _, item := range items {
		id, _ := item["id"].(string)
		if strings.TrimSpace(id) == "" {
			res = append(res, itemResult{Errors: map[string][]string{"form": {"id is required"}}})
			routing.WriteJSON(w, http.StatusUnprocessableEntity, batchResponse{OK: false, Res: res})
			return
		}
		res = append(res, itemResult{})
		ids = append(ids, id)
	}

	if err := e.store.DeleteBatch(r.Context(), tenant.ID, ids); err != nil {
		writeBatchStoreError(w, r, err)
		return
	}
	routing.WriteJSON(w, http.StatusOK, batchResponse{OK: true, Res: res})
}

// handleRecordListAPI serves ?page=N (1-based) with an independent total
// count under the identical tenant predicate.
func handleRecordListAPI(w http.ResponseWriter, r *http.Request, _ reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			page = n
		}
	}
	limit := listLimitDefault
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			limit = n
		}
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	items, total, err := e.store.ListPage(r.Context(), tenant.ID, (page-1)*limit, limit)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if items == nil {
		items = []map[string]any{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func handleRecordItemAPI(w http.ResponseWriter, r *http.Request, _ reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_id", "id required")
		return
	}

	item, err := e.store.GetByID(r.Context(), tenant.ID, id)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if item == nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusNotFound, "not_found", "record not found")
		return
	}
	routing.WriteJSON(w, http.StatusOK, item)
}

func handleRecordDocsAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	text := fieldsdef.RenderDocs(rc.Lang, rc.T, requestBaseURL(r), e.base, e.defs(rc, tenant))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// handleRecordCSVExampleAPI serves the column header line the CSV importer
// matches on.
func handleRecordCSVExampleAPI(w http.ResponseWriter, r *http.Request, rc reqCtx, e entityAPI) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	header := fieldsdef.CSVHeader(e.defs(rc, tenant))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(header, ",") + "\n"))
}

func writeBatchStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if itemErr, ok := asBatchItemError(err); ok {
		res := make([]itemResult, 0, itemErr.Index+1)
		for i := 0; i < itemErr.Index; i++ {
			res = append(res, itemResult{})
		}
		res = append(res, itemResult{Errors: itemErr.Errs})
		status := http.StatusUnprocessableEntity
		if _, isNotFound := itemErr.Errs["id"]; isNotFound {
			status = http.StatusNotFound
		}
		routing.WriteJSON(w, status, batchResponse{OK: false, Res: res})
		return
	}
	if httperr.IsBadRequest(err) {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
}

func asBatchItemError(err error) (*batchItemError, bool) {
	var be *batchItemError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// recordPGStore implements RecordStore over one tenant-scoped table. The
// columns map translates payload keys to column names; only validated keys
// ever reach it.
type recordPGStore struct {
	pool    pgBeginner
	table   string
	columns map[string]string
}

func newRecordPGStore(pool pgBeginner, table string, columns map[string]string) RecordStore {
	return &recordPGStore{pool: pool, table: table, columns: columns}
}

func (s *recordPGStore) CreateBatch(ctx context.Context, tenantID string, items []map[string]any) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for i, item := range items {
		id, err := uuidv7.NewString()
		if err != nil {
			return nil, err
		}

		cols := []string{"id", "country_accounts_id"}
		args := []any{id, tenantID}
		for _, key := range sortedKeys(item) {
			col, ok := s.columns[key]
			if !ok {
				return nil, &batchItemError{Index: i, Errs: map[string][]string{key: {"unknown field"}}}
			}
			cols = append(cols, col)
			args = append(args, item[key])
		}

		placeholders := make([]string, 0, len(args))
		for n := range args {
			placeholders = append(placeholders, "$"+strconv.Itoa(n+1))
		}
		sql := "INSERT INTO " + s.table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return nil, badRequestFromPg(err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *recordPGStore) UpdateBatch(ctx context.Context, tenantID string, updates []RecordUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}

	for i, u := range updates {
		sets := make([]string, 0, len(u.Fields))
		args := []any{u.ID, tenantID}
		n := 3
		for _, key := range sortedKeys(u.Fields) {
			col, ok := s.columns[key]
			if !ok {
				return &batchItemError{Index: i, Errs: map[string][]string{key: {"unknown field"}}}
			}
			sets = append(sets, col+" = $"+strconv.Itoa(n))
			args = append(args, u.Fields[key])
			n++
		}
		if len(sets) == 0 {
			continue
		}
		sql := "UPDATE " + s.table + " SET " + strings.Join(sets, ", ") +
			" WHERE id = $1::uuid AND country_accounts_id = $2::uuid"
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return badRequestFromPg(err)
		}
		if tag.RowsAffected() == 0 {
			return notFoundItemError(i)
		}
	}

	return tx.Commit(ctx)
}

func (s *recordPGStore) DeleteBatch(ctx context.Context, tenantID string, ids []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}

	for i, id := range ids {
		tag, err := tx.Exec(ctx,
			"DELETE FROM "+s.table+" WHERE id = $1::uuid AND country_accounts_id = $2::uuid",
			id, tenantID)
		if err != nil {
			return badRequestFromPg(err)
		}
		if tag.RowsAffected() == 0 {
			return notFoundItemError(i)
		}
	}

	return tx.Commit(ctx)
}

func (s *recordPGStore) GetByID(ctx context.Context, tenantID string, id string) (map[string]any, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	keys, cols := s.selectColumns()
	rows, err := tx.Query(ctx,
		"SELECT "+cols+" FROM "+s.table+" WHERE id = $1::uuid AND country_accounts_id = $2::uuid LIMIT 1",
		id, tenantID)
	if err != nil {
		return nil, badRequestFromPg(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	vals, err := rows.Values()
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rowToMap(keys, vals), nil
}

func (s *recordPGStore) ListPage(ctx context.Context, tenantID string, offset int, limit int) ([]map[string]any, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var total int
	if err := tx.QueryRow(ctx,
		"SELECT count(*) FROM "+s.table+" WHERE country_accounts_id = $1::uuid",
		tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	keys, cols := s.selectColumns()
	rows, err := tx.Query(ctx,
		"SELECT "+cols+" FROM "+s.table+" WHERE country_accounts_id = $1::uuid ORDER BY id DESC LIMIT $2 OFFSET $3",
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rowToMap(keys, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *recordPGStore) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var total int
	if err := tx.QueryRow(ctx,
		"SELECT count(*) FROM "+s.table+" WHERE country_accounts_id = $1::uuid",
		tenantID).Scan(&total); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *recordPGStore) selectColumns() (keys []string, cols string) {
	keys = append(keys, "id")
	parts := []string{"id::text"}
	for _, key := range sortedKeys(s.columns) {
		keys = append(keys, key)
		parts = append(parts, s.columns[key])
	}
	return keys, strings.Join(parts, ", ")
}

func rowToMap(keys []string, vals []any) map[string]any {
	out := make(map[string]any, len(keys))
	for i, k := range keys {
		if i < len(vals) {
			out[k] = vals[i]
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// memoryRecordStore mirrors recordPGStore for handler tests and local runs.
type memoryRecordStore struct {
	mu      sync.Mutex
	records []memoryRecord
}

type memoryRecord struct {
	id       string
	tenantID string
	fields   map[string]any
}

func newMemoryRecordStore() RecordStore {
	return &memoryRecordStore{}
}

func (s *memoryRecordStore) CreateBatch(_ context.Context, tenantID string, items []map[string]any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(items))
	created := make([]memoryRecord, 0, len(items))
	for _, item := range items {
		id, err := uuidv7.NewString()
		if err != nil {
			return nil, err
		}
		fields := make(map[string]any, len(item))
		for k, v := range item {
			fields[k] = v
		}
		created = append(created, memoryRecord{id: id, tenantID: tenantID, fields: fields})
		ids = append(ids, id)
	}
	s.records = append(s.records, created...)
	return ids, nil
}

func (s *memoryRecordStore) UpdateBatch(_ context.Context, tenantID string, updates []RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage on copies so a NotFound mid-batch leaves nothing changed.
	staged := make(map[int]map[string]any)
	for i, u := range updates {
		idx := -1
		for j, rec := range s.records {
			if rec.id == u.ID && rec.tenantID == tenantID {
				idx = j
				break
			}
		}
		if idx < 0 {
			return notFoundItemError(i)
		}
		fields, ok := staged[idx]
		if !ok {
			fields = make(map[string]any, len(s.records[idx].fields))
			for k, v := range s.records[idx].fields {
				fields[k] = v
			}
			staged[idx] = fields
		}
		for k, v := range u.Fields {
			fields[k] = v
		}
	}
	for idx, fields := range staged {
		s.records[idx].fields = fields
	}
	return nil
}

func (s *memoryRecordStore) DeleteBatch(_ context.Context, tenantID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]bool, len(ids))
	for i, id := range ids {
		found := false
		for _, rec := range s.records {
			if rec.id == id && rec.tenantID == tenantID && !doomed[id] {
				found = true
				break
			}
		}
		if !found {
			return notFoundItemError(i)
		}
		doomed[id] = true
	}

	kept := s.records[:0]
	for _, rec := range s.records {
		if doomed[rec.id] && rec.tenantID == tenantID {
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return nil
}

func (s *memoryRecordStore) GetByID(_ context.Context, tenantID string, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.id == id && rec.tenantID == tenantID {
			out := map[string]any{"id": rec.id}
			for k, v := range rec.fields {
				out[k] = v
			}
			return out, nil
		}
	}
	return nil, nil
}

func (s *memoryRecordStore) ListPage(_ context.Context, tenantID string, offset int, limit int) ([]map[string]any, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match []memoryRecord
	for _, rec := range s.records {
		if rec.tenantID == tenantID {
			match = append(match, rec)
		}
	}
	// UUIDv7 ids sort by creation time, so id desc is newest first.
	sort.Slice(match, func(i, j int) bool { return match[i].id > match[j].id })

	total := len(match)
	if offset >= len(match) {
		return nil, total, nil
	}
	match = match[offset:]
	if limit < len(match) {
		match = match[:limit]
	}

	items := make([]map[string]any, 0, len(match))
	for _, rec := range match {
		out := map[string]any{"id": rec.id}
		for k, v := range rec.fields {
			out[k] = v
		}
		items = append(items, out)
	}
	return items, total, nil
}

func (s *memoryRecordStore) CountByTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, rec := range s.records {
		if rec.tenantID == tenantID {
			total++
		}
	}
	return total, nil
}
