package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/internal/credential/models"
	"certledger/internal/credential/service"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
	"certledger/pkg/validation"
)

// Service defines the lifecycle operations used by the handler.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error)
	Revoke(ctx context.Context, certID models.CertID, reason string) (*models.MutationResult, error)
	Supersede(ctx context.Context, oldID, newID models.CertID) (*models.MutationResult, error)
	Verify(ctx context.Context, certID models.CertID) (*models.ReconciledView, error)
	VerifyIntegrity(ctx context.Context, certID models.CertID) (*models.IntegrityReport, error)
	List(ctx context.Context) ([]models.CertificateRecord, error)
	FindBySubject(ctx context.Context, subjectID string) (*models.SubjectLookup, error)
	Sync(ctx context.Context, certID models.CertID) (models.CertificateRecord, error)
	Resync(ctx context.Context) (*models.ResyncReport, error)
}

// DefaultMaxUploadBytes bounds the certificate file in POST /certificates.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 1 << 20

// Handler wires certificate endpoints to the lifecycle service.
type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// Option configures the Handler.
type Option func(*Handler)

// WithMaxUploadBytes caps the uploaded certificate file.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// New constructs a certificate handler.
func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: svc, logger: logger, maxUploadBytes: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterPublic mounts the read-only endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/certificates", h.HandleList)
	r.Get("/certificates/{certID}/integrity", h.HandleIntegrity)
	r.Post("/verify", h.HandleVerify)
}

// RegisterIssuer mounts the lifecycle mutations. Callers wrap r with issuer
// authorization.
func (h *Handler) RegisterIssuer(r chi.Router) {
	r.Post("/certificates", h.HandleIssue)
	r.Post("/certificates/{certID}/revoke", h.HandleRevoke)
	r.Post("/certificates/{certID}/supersede", h.HandleSupersede)
}

// RegisterAdmin mounts cache maintenance endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/certificates/{certID}/sync", h.HandleSync)
	r.Post("/admin/resync", h.HandleResync)
}

// HandleIssue handles POST /certificates. The body is multipart/form-data with
// a "file" part and nim, name, major and program fields.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	form, payload, fileName, err := h.readIssueForm(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid issue request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Issue(ctx, models.IssueRequest{
		Subject:  form.subject(),
		FileName: fileName,
		Payload:  payload,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue certificate",
			"request_id", requestID,
			"nim", form.NIM,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, IssueResponse{
		Certificate: toCertificateResponse(result.Record),
		FileName:    fileName,
		Size:        len(payload),
		Warnings:    warningsOrEmpty(result.Warnings),
	})
}

func (h *Handler) readIssueForm(r *http.Request) (*issueForm, []byte, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, "", dErrors.New(dErrors.CodeTooLarge, "request body too large")
		}
		return nil, nil, "", dErrors.New(dErrors.CodeBadRequest, "expected multipart/form-data body")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := &issueForm{
		NIM:     r.FormValue("nim"),
		Name:    r.FormValue("name"),
		Major:   r.FormValue("major"),
		Program: r.FormValue("program"),
	}
	if err := validation.Validate(form); err != nil {
		return nil, nil, "", err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, "", dErrors.New(dErrors.CodeInvalidInput, "file is required")
	}
	defer file.Close()
	if header.Size > h.maxUploadBytes {
		return nil, nil, "", dErrors.New(dErrors.CodeTooLarge, "certificate file too large")
	}

	payload, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, nil, "", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read certificate file")
	}
	if int64(len(payload)) > h.maxUploadBytes {
		return nil, nil, "", dErrors.New(dErrors.CodeTooLarge, "certificate file too large")
	}
	if len(payload) == 0 {
		return nil, nil, "", dErrors.New(dErrors.CodeInvalidInput, "file is empty")
	}
	return form, payload, header.Filename, nil
}

// HandleVerify handles POST /verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.service.Verify(ctx, models.CertID(req.CertID))
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to verify certificate",
				"request_id", requestID,
				"cert_id", req.CertID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		CertificateResponse: toCertificateResponse(view.Record),
		OnChain:             true,
		CacheFound:          view.CacheFound,
		CacheMismatch:       view.Mismatch,
		StatusDrift:         view.StatusDrift,
		CachedHash:          view.CachedHash,
		Note:                view.Note,
		Warnings:            warningsOrEmpty(view.Warnings),
	})
}

// HandleList handles GET /certificates. With ?nim= it lists one student's
// certificates instead of the whole ledger.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Has("nim") {
		h.handleListBySubject(w, r)
		return
	}

	records, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list certificates",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	certificates := make([]CertificateResponse, 0, len(records))
	for _, rec := range records {
		certificates = append(certificates, toCertificateResponse(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Count: len(certificates), Certificates: certificates})
}

func (h *Handler) handleListBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := SubjectQuery{NIM: strings.TrimSpace(r.URL.Query().Get("nim"))}
	if err := validation.Validate(&query); err != nil {
		httputil.WriteError(w, err)
		return
	}

	lookup, err := h.service.FindBySubject(ctx, query.NIM)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list certificates by student",
			"request_id", requestcontext.RequestID(ctx),
			"nim", query.NIM,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	certificates := make([]CertificateResponse, 0, len(lookup.Records))
	for _, rec := range lookup.Records {
		certificates = append(certificates, toCertificateResponse(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, SubjectListResponse{
		NIM:          lookup.SubjectID,
		Source:       lookup.Source,
		Count:        len(certificates),
		Certificates: certificates,
		Warnings:     warningsOrEmpty(lookup.Warnings),
	})
}

// HandleIntegrity handles GET /certificates/{certID}/integrity.
func (h *Handler) HandleIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.pathCertID(w, r)
	if !ok {
		return
	}

	report, err := h.service.VerifyIntegrity(ctx, certID)
	if err != nil {
		h.logger.WarnContext(ctx, "integrity check failed",
			"request_id", requestcontext.RequestID(ctx),
			"cert_id", certID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, IntegrityResponse{
		CertID:       report.CertID.String(),
		ContentID:    report.ContentID,
		RecordedHash: report.RecordedHash,
		ComputedHash: report.ComputedHash,
		Size:         report.Size,
		CheckedAt:    report.CheckedAt,
	})
}

// HandleRevoke handles POST /certificates/{certID}/revoke. The body is optional.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.pathCertID(w, r)
	if !ok {
		return
	}

	req := &RevokeRequest{}
	if r.ContentLength != 0 {
		if req, ok = httputil.DecodeAndValidate[RevokeRequest](w, r, h.logger); !ok {
			return
		}
	}

	result, err := h.service.Revoke(ctx, certID, req.Reason)
	if err != nil {
		h.logMutationFailure(ctx, "failed to revoke certificate", certID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(result))
}

// HandleSupersede handles POST /certificates/{certID}/supersede.
func (h *Handler) HandleSupersede(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.pathCertID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndValidate[SupersedeRequest](w, r, h.logger)
	if !ok {
		return
	}
	newID := models.CertID(req.NewCertID)
	if newID == certID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "new_cert_id must differ from the superseded certificate"))
		return
	}

	result, err := h.service.Supersede(ctx, certID, newID)
	if err != nil {
		h.logMutationFailure(ctx, "failed to supersede certificate", certID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(result))
}

// HandleSync handles POST /admin/certificates/{certID}/sync.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.pathCertID(w, r)
	if !ok {
		return
	}

	record, err := h.service.Sync(ctx, certID)
	if err != nil {
		h.logMutationFailure(ctx, "failed to sync certificate", certID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(record))
}

// HandleResync handles POST /admin/resync.
func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.service.Resync(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "cache resync failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResyncResponse{
		Scanned:    report.Scanned,
		Consistent: report.Consistent,
		Upserted:   report.Upserted,
		Failed:     report.Failed,
		DurationMS: report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})
}

func (h *Handler) pathCertID(w http.ResponseWriter, r *http.Request) (models.CertID, bool) {
	certID, err := models.ParseCertID(strings.TrimSpace(chi.URLParam(r, "certID")))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid certificate id"))
		return "", false
	}
	return certID, true
}

func (h *Handler) logMutationFailure(ctx context.Context, msg string, certID models.CertID, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"cert_id", certID.String(),
		"error", err,
	}
	if actor, ok := requestcontext.ActorFrom(ctx); ok {
		attrs = append(attrs, "actor", actor.Subject)
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}

func warningsOrEmpty(warnings []models.Warning) []models.Warning {
	if warnings == nil {
		return []models.Warning{}
	}
	return warnings
}

func toCertificateResponse(r models.CertificateRecord) CertificateResponse {
	return CertificateResponse{
		CertID:           r.CertID.String(),
		NIM:              r.SubjectID,
		Name:             r.SubjectName,
		Major:            r.Major,
		Program:          r.Program,
		ContentID:        r.ContentID,
		ContentHash:      r.ContentHash,
		Status:           r.Status.String(),
		IssuedAt:         r.IssuedAt.UTC().Format(time.RFC3339Nano),
		SupersededBy:     r.SupersededBy.String(),
		RevocationReason: r.RevocationReason,
	}
}

func toMutationResponse(r *models.MutationResult) MutationResponse {
	return MutationResponse{
		CertID:   r.CertID.String(),
		Status:   r.Status.String(),
		Warnings: warningsOrEmpty(r.Warnings),
	}
}

var _ Service = (*service.Service)(nil)
