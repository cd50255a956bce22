package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"soci/internal/log"
	"soci/internal/report"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	rev, err := s.ledger.Revision(r.Context())
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "ledger store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{"status": "ready", "revision": rev}).Write(w)
}

func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.ledger.Roster().Partners()).Write(w)
}

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	fin, err := s.ledger.Financials(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(fin).Write(w)
}

func (s *Server) handleExportLedger(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.ledger.Export(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type importResponse struct {
	Projects  int   `json:"projects"`
	Payments  int   `json:"payments"`
	Expenses  int   `json:"expenses"`
	Dividends int   `json:"dividends"`
	Revision  int64 `json:"revision"`
}

func (s *Server) handleImportLedger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLedgerBytes))
	if err != nil {
		BadRequestError("ledger document too large or unreadable").Write(w)
		return
	}
	if !json.Valid(body) {
		BadRequestError(ErrMalformedRequest.Error()).Write(w)
		return
	}
	l, err := s.ledger.Import(r.Context(), bytes.NewReader(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := s.ledger.Revision(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(importResponse{
		Projects:  len(l.Projects),
		Payments:  len(l.Payments),
		Expenses:  len(l.Expenses),
		Dividends: len(l.Dividends),
		Revision:  rev,
	}).Write(w)
}

func (s *Server) handleResetLedger(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// decodeValid decodes and validates a request DTO, writing the error
// response itself. It reports whether the handler may continue.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		BadRequestError(err.Error()).Write(w)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		UnprocessableEntityError(validationError(err).Error()).Write(w)
		return false
	}
	return true
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	p, err := s.ledger.CreateProject(r.Context(), req.toProject())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(p).Write(w)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	p, err := req.toPayment(s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err = s.ledger.RecordPayment(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(p).Write(w)
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	e, err := req.toExpense(s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err = s.ledger.RecordExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

func (s *Server) handleRecordDividend(w http.ResponseWriter, r *http.Request) {
	var req dividendRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	date, err := parseRequestDate(req.Date, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.ledger.RecordDividend(r.Context(), req.PartnerID, date, float64(req.GrossAmount))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(d).Write(w)
}

// handleReport narrates the current figures. Generation problems come back
// as {"error": ...} and never touch the ledger.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	if s.generator == nil {
		ErrorResponse(http.StatusServiceUnavailable, report.ErrNotConfigured.Error()).Write(w)
		return
	}

	fin, err := s.ledger.Financials(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	proj := report.BuildProjection(fin, l, sanitizeInput(req.Text), req.Recent)
	res := report.Narrate(r.Context(), s.generator, proj, s.reportTimeout)
	if res.Error != "" {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Report generation failed", log.FieldError, res.Error)
		ErrorResponse(http.StatusBadGateway, res.Error).Write(w)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("not found").Write(w)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	MethodNotAllowedError("").Write(w)
}
