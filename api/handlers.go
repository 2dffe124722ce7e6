/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger reports over REST. Handles HTTP request/response,
  query validation and JSON serialization, and delegates the ledger work to
  books.Service.

ENDPOINTS:
  Books:
    GET    /api/books                      List stored books
    GET    /api/books/{book}/ledger        Running ledger of a whole book
    GET    /api/books/{book}/export        Same, as an XLSX workbook
    POST   /api/books/{book}/records       Append records to a book

  Reports:
    GET    /api/reports                    List configured report definitions
    GET    /api/reports/{id}               Run a report definition
    GET    /api/reports/{id}/export        Same, as an XLSX workbook

  Shortcuts:
    GET    /api/cashbook                   Cash book
    GET    /api/parties/{code}/ledger      Party ledger
    GET    /api/parties/{code}/balance-slip Invoice balance slip
    GET    /api/outstanding                Outstanding by subgroup
    GET    /api/accounts                   Account master

QUERY:
  Every report endpoint accepts from, to, opening, party, series, prefix,
  subgroup and blank_series (see query.go). to is required.

CACHING:
  Report bodies are cached by (definition, canonical query, store version)
  and served with an ETag. If-None-Match answers 304.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: invalid query, invalid range, missing to date, missing party
  - 404: unknown book or report
  - 500: a book could not be loaded, or an internal error
  - 501: the store is read-only

SEE ALSO:
  - dto.go: Response data structures
  - query.go: Query parsing and validation
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logging"
)

// maxAppendBytes bounds the body of an append request.
const maxAppendBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Versioner is implemented by stores that count their own writes.
type Versioner interface {
	Version(ctx context.Context) (int64, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.Source
	Service *books.Service
	Cache   *ReportCache
	Metrics *Metrics
	Log     *logrus.Logger

	reports  []*books.Definition
	byID     map[string]*books.Definition
	validate *validator.Validate
}

// NewHandler creates a handler over src serving the given report
// definitions. Cache and Metrics may be set afterwards; both are optional.
func NewHandler(src ledger.Source, svc *books.Service, defs []*books.Definition, log *logrus.Logger) *Handler {
	h := &Handler{
		Store:    src,
		Service:  svc,
		Log:      log,
		byID:     make(map[string]*books.Definition, len(defs)),
		validate: validator.New(),
	}
	for _, d := range defs {
		if _, dup := h.byID[d.ID]; dup {
			continue
		}
		h.byID[d.ID] = d
		h.reports = append(h.reports, d)
	}
	return h
}

// preset returns the first definition of a kind.
func (h *Handler) preset(kind books.Kind) (*books.Definition, error) {
	for _, d := range h.reports {
		if d.Kind == kind {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s report configured", ledger.ErrUnknownBook, kind)
}

// =============================================================================
// BOOK ENDPOINTS
// =============================================================================

// ListBooks returns the books present in the store.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	names, err := h.Store.Books(r.Context())
	if err != nil {
		return h.fail(w, err)
	}

	result := make([]BookDTO, 0, len(names))
	for _, name := range names {
		_, schemaErr := books.SchemaFor(name)
		result = append(result, BookDTO{Name: name, Reportable: schemaErr == nil})
	}
	ld.AddData("books", len(result))
	writeJSON(w, http.StatusOK, result)
	return nil
}

// BookLedger returns the running ledger of a whole book.
func (h *Handler) BookLedger(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	def := books.BookDefinition(chi.URLParam(r, "book"))
	return h.serveReport(w, r, ld, def, nil)
}

// ExportBook returns the running ledger of a whole book as XLSX.
func (h *Handler) ExportBook(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	def := books.BookDefinition(chi.URLParam(r, "book"))
	return h.exportReport(w, r, ld, def, nil)
}

// AppendRecords appends a JSON array of records to a book.
func (h *Handler) AppendRecords(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	ctx := r.Context()
	book := chi.URLParam(r, "book")
	ld.AddData("book", book)

	writer, ok := h.Store.(ledger.Writer)
	if !ok {
		writeErrorCode(w, http.StatusNotImplemented, "read_only", "store does not accept writes", nil)
		return nil
	}

	if _, err := books.SchemaFor(book); err != nil && book != books.BookAccounts {
		return h.fail(w, err)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAppendBytes))
	dec.UseNumber()
	var records []ledger.RawRecord
	if err := dec.Decode(&records); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", "body must be a JSON array of records", err)
		return nil
	}
	if len(records) == 0 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", "no records to append", nil)
		return nil
	}

	if err := writer.Append(ctx, book, records); err != nil {
		return h.fail(w, err)
	}
	if err := h.Cache.Bump(ctx); err != nil {
		logging.LogError(h.Log, "api", "AppendRecords", "cache bump failed", book, err)
	}

	ld.AddData("appended", len(records))
	writeJSON(w, http.StatusCreated, AppendResponse{Book: book, Appended: len(records)})
	return nil
}

// ListAccounts returns the account master.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	accounts, err := h.Service.Accounts(r.Context())
	if err != nil {
		return h.fail(w, err)
	}

	result := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		result[i] = AccountDTO{
			Code:           a.Code,
			Name:           a.Name,
			Subgroup:       a.Subgroup,
			Opening:        amount(a.Opening),
			OpeningDisplay: FormatBalance(a.Opening),
		}
	}
	ld.AddData("accounts", len(result))
	writeJSON(w, http.StatusOK, result)
	return nil
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// ListReports returns the configured report definitions.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	result := make([]ReportDefinitionDTO, len(h.reports))
	for i, d := range h.reports {
		result[i] = toDefinitionDTO(d)
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

// RunReport runs a configured report definition.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	def, err := h.definition(chi.URLParam(r, "id"))
	if err != nil {
		return h.fail(w, err)
	}
	return h.serveReport(w, r, ld, def, nil)
}

// ExportReport runs a configured report definition and returns XLSX.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	def, err := h.definition(chi.URLParam(r, "id"))
	if err != nil {
		return h.fail(w, err)
	}
	return h.exportReport(w, r, ld, def, nil)
}

// CashBook runs the cash book.
func (h *Handler) CashBook(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	return h.servePreset(w, r, ld, books.KindCashBook)
}

// PartyLedger runs the party ledger for the party in the path.
func (h *Handler) PartyLedger(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	return h.servePreset(w, r, ld, books.KindPartyLedger)
}

// BalanceSlip runs the invoice balance slip for the party in the path.
func (h *Handler) BalanceSlip(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	return h.servePreset(w, r, ld, books.KindBalanceSlip)
}

// Outstanding runs the outstanding report.
func (h *Handler) Outstanding(w http.ResponseWriter, r *http.Request, ld *logging.LogData) error {
	return h.servePreset(w, r, ld, books.KindOutstanding)
}

// Healthz reports whether the store can list its books.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.Books(r.Context()); err != nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "unhealthy", "store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) definition(id string) (*books.Definition, error) {
	def, ok := h.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: report %q", ledger.ErrUnknownBook, id)
	}
	return def, nil
}

func (h *Handler) servePreset(w http.ResponseWriter, r *http.Request, ld *logging.LogData, kind books.Kind) error {
	def, err := h.preset(kind)
	if err != nil {
		return h.fail(w, err)
	}
	return h.serveReport(w, r, ld, def, pathParty(r))
}

// pathParty adds the {code} path parameter to the query's parties.
func pathParty(r *http.Request) func(*ReportQuery) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		return nil
	}
	return func(q *ReportQuery) {
		q.Parties = append([]string{code}, q.Parties...)
	}
}

// =============================================================================
// REPORT PIPELINE
// =============================================================================

func (h *Handler) parseQuery(r *http.Request, adjust func(*ReportQuery)) (ReportQuery, books.ReportRequest, error) {
	q, err := parseReportQuery(h.validate, r.URL.Query())
	if err != nil {
		return q, books.ReportRequest{}, err
	}
	if adjust != nil {
		adjust(&q)
	}
	req, err := q.Request()
	return q, req, err
}

// serveReport answers a report request from the cache, or builds it.
func (h *Handler) serveReport(w http.ResponseWriter, r *http.Request, ld *logging.LogData, def *books.Definition, adjust func(*ReportQuery)) error {
	ctx := r.Context()
	ld.AddData("report_id", def.ID)

	q, req, err := h.parseQuery(r, adjust)
	if err != nil {
		return h.fail(w, err)
	}

	build := func(ctx context.Context) ([]byte, error) {
		done := ld.AddTiming("build_ms")
		defer done()

		report, err := h.Service.Run(ctx, def, req)
		if err != nil {
			return nil, err
		}
		h.Metrics.ObserveReport(string(def.Kind), report)
		ld.AddData("rows", len(report.Rows))
		ld.AddData("skipped", report.Diagnostics.Skipped)
		ld.AddData("excluded", report.Diagnostics.Excluded)
		return json.Marshal(toReportDTO(def, req, report))
	}

	var body []byte
	key, err := h.cacheKey(ctx, def, q)
	if err != nil {
		logging.LogError(h.Log, "api", "serveReport", "cache key failed", def.ID, err)
		body, err = build(ctx)
	} else {
		var hit bool
		body, hit, err = h.Cache.Fetch(ctx, key, build)
		if h.Cache.Enabled() && err == nil {
			h.Metrics.ObserveCache(hit)
			ld.AddData("cache_hit", hit)
		}
	}
	if err != nil {
		return h.fail(w, err)
	}

	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

// exportReport builds a report and writes it as an XLSX attachment.
// Exports are not cached.
func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request, ld *logging.LogData, def *books.Definition, adjust func(*ReportQuery)) error {
	ld.AddData("report_id", def.ID)

	_, req, err := h.parseQuery(r, adjust)
	if err != nil {
		return h.fail(w, err)
	}

	report, err := h.Service.Run(r.Context(), def, req)
	if err != nil {
		return h.fail(w, err)
	}
	h.Metrics.ObserveReport(string(def.Kind), report)
	ld.AddData("rows", len(report.Rows))

	title := fmt.Sprintf("%s %s to %s", def.Name, req.From, req.To)
	filename := fmt.Sprintf("%s_%s.xlsx", safeFilename(def.ID), req.To)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	if err := WriteLedgerXLSX(w, title, report); err != nil {
		return err
	}
	return nil
}

func (h *Handler) cacheKey(ctx context.Context, def *books.Definition, q ReportQuery) (string, error) {
	parts := []string{
		def.ID,
		string(def.Kind),
		def.Book,
		strings.Join(def.Series, ","),
		strings.Join(def.BookPrefixes, ","),
		def.BlankSeries.String(),
		q.Fingerprint(),
	}
	if v, ok := h.Store.(Versioner); ok {
		ver, err := v.Version(ctx)
		if err != nil {
			return "", err
		}
		parts = append(parts, "store="+strconv.FormatInt(ver, 10))
	}
	return h.Cache.BuildKey(ctx, parts...)
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// =============================================================================
// ERRORS AND RESPONSES
// =============================================================================

// fail writes the response for err. Only server-side failures are returned
// so that the logging wrapper records them.
func (h *Handler) fail(w http.ResponseWriter, err error) error {
	var qerr *QueryError
	switch {
	case errors.As(err, &qerr):
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", "invalid query parameters", nil, qerr.Fields)
		return nil
	case ledger.IsClientError(err):
		writeErrorCode(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return nil
	case ledger.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)
		return nil
	case ledger.IsSourceUnavailable(err):
		writeErrorCode(w, http.StatusInternalServerError, "source_unavailable", "a book could not be loaded", err)
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorCode(w, http.StatusServiceUnavailable, "timeout", "request timed out", nil)
		return err
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, "", message, err)
}

// writeErrorCode writes an ErrorResponse. details, when given, replaces the
// error text in the Details field.
func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error, details ...any) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	writeJSON(w, status, resp)
}
