package httpServer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcServer "github.com/oinam-labs/tac-portal-sub002/services/manifest-service/handler/grpc"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/invoice"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/scan"
)

const (
	headerStaffID   = "X-Staff-ID"
	headerStationID = "X-Station-ID"
)

// RateConfig sizes the per-station scan bucket. Zero capacity disables it.
type RateConfig struct {
	Capacity float64
	Refill   float64
}

// Handler exposes the manifest service over JSON/HTTP.
type Handler struct {
	svc     *manifest.Service
	log     logrus.FieldLogger
	limiter Limiter
	rate    RateConfig
}

// NewHandler wires the routes. limiter may be nil.
func NewHandler(svc *manifest.Service, log logrus.FieldLogger, limiter Limiter, rate RateConfig) *Handler {
	return &Handler{svc: svc, log: log, limiter: limiter, rate: rate}
}

// Router returns the full route table wrapped in request logging.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/manifests", h.createManifest).Methods(http.MethodPost)
	api.HandleFunc("/manifests", h.listManifests).Methods(http.MethodGet)
	api.HandleFunc("/manifests/{id}", h.getManifest).Methods(http.MethodGet)
	api.HandleFunc("/manifests/{id}/items", h.listItems).Methods(http.MethodGet)
	api.HandleFunc("/manifests/{id}/items/{shipmentID}", h.removeItem).Methods(http.MethodDelete)
	api.Handle("/manifests/{id}/scan", h.scanLimiter(http.HandlerFunc(h.scanShipment))).Methods(http.MethodPost)
	api.HandleFunc("/manifests/{id}/scan-logs", h.scanLogs).Methods(http.MethodGet)
	api.HandleFunc("/manifests/{id}/status", h.updateStatus).Methods(http.MethodPost)
	api.HandleFunc("/manifests/{id}/{action:close|depart|arrive|reconcile}", h.lifecycle).Methods(http.MethodPost)
	api.HandleFunc("/reports/shift", h.shiftSummary).Methods(http.MethodGet)
	api.HandleFunc("/scan/parse", h.parseScan).Methods(http.MethodPost)
	api.HandleFunc("/invoices/validate", h.validateInvoice).Methods(http.MethodPost)

	return &logHandler{log: h.log, next: r}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: codes.InvalidArgument.String()})
}

// writeError runs err through the gRPC mapper so both transports agree on
// what a client may see.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st := status.Convert(grpcServer.MapManifestError(err))
	code := httpStatus(st.Code())
	if code >= http.StatusInternalServerError {
		requestLog(r, h.log).WithError(err).Error("request failed")
	}
	writeJSON(w, code, errorBody{Error: st.Message(), Code: st.Code().String()})
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	return id, err == nil
}

// staffID prefers the body value and falls back to the X-Staff-ID header.
func staffID(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return r.Header.Get(headerStaffID)
}

func (h *Handler) createManifest(w http.ResponseWriter, r *http.Request) {
	var req manifest.CreateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.StaffID = staffID(r, req.StaffID)

	m, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) listManifests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := manifest.Filter{
		FromHubID: q.Get("from_hub"),
		ToHubID:   q.Get("to_hub"),
		HubID:     q.Get("hub"),
		Type:      manifest.Type(strings.ToUpper(q.Get("type"))),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := manifest.ParseStatus(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Status = st
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "limit must be a number")
			return
		}
		f.Limit = n
	}

	ms, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ms == nil {
		ms = []manifest.Manifest{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *Handler) getManifest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	items, err := h.svc.Items(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []manifest.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	shipmentID, ok := pathUUID(r, "shipmentID")
	if !ok {
		badRequest(w, "invalid shipment id")
		return
	}
	if err := h.svc.RemoveShipment(r.Context(), id, shipmentID, r.Header.Get(headerStaffID)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scanShipment answers 200 for every business outcome, including rejections,
// so the station can render the code. Only store failures return 500.
func (h *Handler) scanShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	var req manifest.ScanRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.ManifestID = id
	req.StaffID = staffID(r, req.StaffID)
	if req.StationID == "" {
		req.StationID = r.Header.Get(headerStationID)
	}

	resp, err := h.svc.AddShipmentByScan(r.Context(), req)
	if err != nil {
		requestLog(r, h.log).WithError(err).Error("scan failed")
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) scanLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	logs, err := h.svc.ScanLogs(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []manifest.ScanLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

type statusRequest struct {
	Status  string `json:"status"`
	StaffID string `json:"staff_id,omitempty"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	to, err := manifest.ParseStatus(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	m, err := h.svc.UpdateStatus(r.Context(), id, to, staffID(r, req.StaffID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type actionRequest struct {
	StaffID string `json:"staff_id,omitempty"`
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid manifest id")
		return
	}
	var req actionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}
	staff := staffID(r, req.StaffID)

	var (
		res *manifest.LifecycleResult
		err error
	)
	switch mux.Vars(r)["action"] {
	case "close":
		res, err = h.svc.Close(r.Context(), id, staff)
	case "depart":
		res, err = h.svc.Depart(r.Context(), id, staff)
	case "arrive":
		res, err = h.svc.Arrive(r.Context(), id, staff)
	case "reconcile":
		res, err = h.svc.Reconcile(r.Context(), id, staff)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) shiftSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		badRequest(w, "start must be an RFC3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		badRequest(w, "end must be an RFC3339 timestamp")
		return
	}
	if !end.After(start) {
		badRequest(w, "end must be after start")
		return
	}

	sum, err := h.svc.ShiftSummary(r.Context(), q.Get("hub"), start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type parseRequest struct {
	Raw string `json:"raw"`
}

type parseResponse struct {
	Valid      bool        `json:"valid"`
	Token      *scan.Token `json:"token,omitempty"`
	Normalized string      `json:"normalized,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func (h *Handler) parseScan(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	tok, err := scan.ParseScanInput(req.Raw)
	if err != nil {
		writeJSON(w, http.StatusOK, parseResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{Valid: true, Token: &tok, Normalized: tok.Normalized()})
}

type invoiceRequest struct {
	Invoice  invoice.Invoice   `json:"invoice"`
	Customer *invoice.Customer `json:"customer,omitempty"`
}

func (h *Handler) validateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, invoice.ValidateInvoice(req.Invoice, req.Customer))
}
