package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/thermocert/thermocert/internal/alerts"
	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/edit"
	"github.com/thermocert/thermocert/internal/ingest"
	"github.com/thermocert/thermocert/internal/metrics"
	"github.com/thermocert/thermocert/internal/normalize"
	"github.com/thermocert/thermocert/internal/store"
	"github.com/thermocert/thermocert/pkg/types"
)

// Deps are the collaborators the API serves from. Alerts and Metrics may be
// nil; OnChange, when set, is called after every upload or edit.
type Deps struct {
	Store          *store.Store
	Pipeline       *ingest.Pipeline
	Engine         *compute.Engine
	Alerts         *alerts.Engine
	Metrics        *metrics.Registry
	MaxUploadBytes int64
	OnChange       func()
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	store     *store.Store
	pipe      *ingest.Pipeline
	eng       *compute.Engine
	alerts    *alerts.Engine
	metrics   *metrics.Registry
	maxUpload int64
	onChange  func()
	router    *mux.Router
}

// New creates a Handler from d and registers all routes.
func New(d Deps) *Handler {
	h := &Handler{
		store:     d.Store,
		pipe:      d.Pipeline,
		eng:       d.Engine,
		alerts:    d.Alerts,
		metrics:   d.Metrics,
		maxUpload: d.MaxUploadBytes,
		onChange:  d.OnChange,
		router:    mux.NewRouter(),
	}
	if h.alerts == nil {
		h.alerts = alerts.New(config.AlertsConfig{})
	}
	if h.metrics == nil {
		h.metrics = metrics.NewRegistry()
	}
	if h.maxUpload <= 0 {
		h.maxUpload = config.DefaultMaxUploadBytes
	}

	r := h.router
	r.HandleFunc("/api/v1/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/results", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/results", h.listResults).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/results/{id}", h.getResult).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/results/{id}/lethality", h.lethality).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/results/{id}/readings/{index}", h.editReading).Methods(http.MethodPatch)
	r.HandleFunc("/api/v1/alerts", h.listAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/snapshot", h.snapshot).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ApplyLimits installs l and re-evaluates every stored result under it, so
// stored verdicts, diagnostics and alerts agree with the active limits. It
// returns how many verdicts changed. Results whose summary is unchanged are
// left as they are.
func (h *Handler) ApplyLimits(ctx context.Context, l config.Limits) int {
	h.eng.SetLimits(l)

	flipped, touched := 0, 0
	for _, e := range h.store.List() {
		var before types.Status
		res, err := h.store.Update(ctx, e.Result.ID, func(prev *types.TestResult) (*types.TestResult, error) {
			next := prev.Clone()
			h.eng.Evaluate(next)
			if reflect.DeepEqual(next.Summary, prev.Summary) {
				return nil, errUnchanged
			}
			before = prev.Summary.Status
			return next, nil
		})
		switch {
		case errors.Is(err, errUnchanged), errors.Is(err, store.ErrNotFound):
			continue
		case err != nil:
			slog.Error("api: re-evaluate result", "test", e.Result.ID, "err", err)
			continue
		}
		touched++
		if res.Summary.Status != before {
			flipped++
			slog.Info("api: verdict changed by new limits",
				"test", res.ID,
				"from", before,
				"to", res.Summary.Status,
			)
		}
		h.alerts.Evaluate(res)
	}
	if touched > 0 {
		h.changed()
	}
	return flipped
}

var errUnchanged = errors.New("summary unchanged")

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{ResultCount: len(entries)}
	for _, e := range entries {
		switch e.Result.Summary.Status {
		case types.StatusCompliant:
			resp.CompliantCount++
		case types.StatusNonCompliant:
			resp.NonCompliantCount++
		default:
			resp.NotApplicableCount++
		}
	}
	for _, a := range h.alerts.Active() {
		if a.State == alerts.StateFiring {
			resp.AlertCount++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// upload handles POST /api/v1/results. Each file is processed independently:
// a rejected file is reported in the response and never blocks the others.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var cat types.Category
	if q := r.URL.Query().Get("category"); q != "" {
		c, err := types.ParseCategory(q)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		cat = c
	}

	files, err := h.readFiles(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonErr(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range files {
		files[i].Category = cat
	}

	limits := h.eng.Limits()
	resp := UploadResponse{Results: []ResultResponse{}, Errors: []FileError{}}
	for _, o := range h.pipe.Batch(r.Context(), files) {
		if o.Err != nil {
			resp.Errors = append(resp.Errors, toFileError(o.File, o.Err))
			continue
		}
		for _, res := range o.Results {
			if err := h.store.Put(r.Context(), res); err != nil {
				slog.Error("api: store result", "file", o.File, "test", res.ID, "err", err)
				resp.Errors = append(resp.Errors, toFileError(o.File, err))
				continue
			}
			h.alerts.Evaluate(res)
			resp.Results = append(resp.Results, toResultResponse(h.entry(res), limits))
		}
	}
	h.changed()

	code := http.StatusCreated
	if len(resp.Results) == 0 {
		code = http.StatusUnprocessableEntity
	}
	jsonResp(w, code, resp)
}

// listResults returns GET /api/v1/results, oldest first.
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	entries := h.store.List()
	out := make([]ResultSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSummary(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getResult returns GET /api/v1/results/{id}.
func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	}
	jsonResp(w, http.StatusOK, toResultResponse(e, h.eng.Limits()))
}

// lethality returns GET /api/v1/results/{id}/lethality: the running F0 of
// every sensor that has data, for charting.
func (h *Handler) lethality(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	}
	res := e.Result
	limits := h.eng.Limits()
	resp := LethalityResponse{
		ID:      res.ID,
		Offsets: make([]float64, len(res.Readings)),
		Series:  make(map[string][]float64, len(res.Sensors)),
	}
	for i := range res.Readings {
		resp.Offsets[i] = res.Readings[i].TimeOffsetMinutes
	}
	for _, sensor := range res.Sensors {
		series, ok := compute.LethalitySeries(res.Readings, sensor, limits)
		if !ok {
			continue
		}
		for i, v := range series {
			series[i] = round(v, valuePlaces)
		}
		resp.Series[sensor] = series
	}
	jsonResp(w, http.StatusOK, resp)
}

// editReading handles PATCH /api/v1/results/{id}/readings/{index}.
func (h *Handler) editReading(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "reading index must be an integer")
		return
	}

	var req editRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Sensor == "" {
		jsonErr(w, http.StatusBadRequest, "sensor is required")
		return
	}
	if len(req.Value) == 0 {
		jsonErr(w, http.StatusBadRequest, "value is required (null clears the reading)")
		return
	}
	ed := edit.Edit{Index: index, Sensor: req.Sensor}
	if !bytes.Equal(bytes.TrimSpace(req.Value), []byte("null")) {
		var v float64
		if err := json.Unmarshal(req.Value, &v); err != nil {
			jsonErr(w, http.StatusBadRequest, "value must be a number or null")
			return
		}
		ed.Value = &v
	}

	res, err := h.store.Update(r.Context(), id, func(prev *types.TestResult) (*types.TestResult, error) {
		return edit.Apply(prev, ed, h.eng)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "result not found")
		return
	case errors.Is(err, edit.ErrIndexOutOfRange),
		errors.Is(err, edit.ErrUnknownSensor),
		errors.Is(err, edit.ErrInvalidValue):
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("api: edit failed", "test", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "edit could not be saved")
		return
	}

	slog.Info("api: value edited",
		"test", id,
		"index", index,
		"sensor", ed.Sensor,
		"status", res.Summary.Status,
	)
	h.metrics.ObserveEdit(res.Summary.Status)
	h.alerts.Evaluate(res)
	h.changed()
	jsonResp(w, http.StatusOK, toResultResponse(h.entry(res), h.eng.Limits()))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.alerts))
}

// BuildSnapshot assembles the snapshot payload shared by the REST API and the
// WebSocket hub. al may be nil.
func BuildSnapshot(st *store.Store, al *alerts.Engine) SnapshotResponse {
	entries := st.List()
	results := make([]ResultSummary, 0, len(entries))
	for _, e := range entries {
		results = append(results, toSummary(e))
	}
	active := []*alerts.Alert{}
	if al != nil {
		active = al.Active()
	}
	return SnapshotResponse{
		Results:     results,
		Alerts:      active,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

// readFiles extracts the uploaded files from a multipart form ("file" parts)
// or from a raw body named by ?name=.
func (h *Handler) readFiles(r *http.Request) ([]ingest.File, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		var files []ingest.File
		for _, fh := range r.MultipartForm.File["file"] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open part %q: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("read part %q: %w", fh.Filename, err)
			}
			files = append(files, ingest.File{Name: fh.Filename, Data: data})
		}
		if len(files) == 0 {
			return nil, errors.New(`multipart upload has no "file" parts`)
		}
		return files, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	return []ingest.File{{Name: name, Data: data}}, nil
}

// entry returns the stored entry for res, or a fresh one when the store has
// already dropped it.
func (h *Handler) entry(res *types.TestResult) *store.Entry {
	if e, ok := h.store.Get(res.ID); ok {
		return e
	}
	now := time.Now()
	return &store.Entry{Result: res, CreatedAt: now, UpdatedAt: now}
}

func (h *Handler) changed() {
	h.metrics.SetStored(h.store.Count())
	if h.onChange != nil {
		h.onChange()
	}
}

func toFileError(file string, err error) FileError {
	fe := FileError{File: file, Error: err.Error()}
	var ferr *normalize.FormatError
	if errors.As(err, &ferr) {
		fe.Element = ferr.Element
	}
	return fe
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
