package http

import (
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

//go:embed static/index.html
var staticFiles embed.FS

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type uploadResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	CouponsLoaded int    `json:"coupons_loaded"`
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleValidate reports failures to locate the address as a 200 with
// status "error"; only missing parameters are a client error.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	claim := strings.TrimSpace(r.URL.Query().Get("jurisdiction"))
	if address == "" || claim == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Status:  domain.StatusError,
			Message: "address and jurisdiction are required",
		})
		return
	}

	decision, err := s.validator.ValidateJurisdiction(r.Context(), address, claim)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusOK, errorResponse{Status: domain.StatusError, Message: err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, decision)
}

// handleValidateCoupon always answers with a full coupon decision; the
// validator has already folded any error into its status and reason.
func (s *Server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	code := strings.TrimSpace(r.URL.Query().Get("coupon"))
	if address == "" || code == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, domain.CouponDecision{
			Status: domain.StatusError,
			Coupon: domain.NormalizeCouponCode(code),
			Reason: "address and coupon are required",
		})
		return
	}

	decision, _ := s.validator.ValidateCoupon(r.Context(), address, code)
	sharedobs.WriteJSON(w, http.StatusOK, decision)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.CouponUploads.WithLabelValues("rejected").Inc()
		s.logger.Warn("coupon upload rejected", "remote", r.RemoteAddr)
		sharedobs.WriteJSON(w, http.StatusUnauthorized, errorResponse{Status: domain.StatusError, Message: "invalid or missing API key"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.UploadMaxBytes)
	content, err := readUpload(r, s.opts.UploadMaxBytes)
	if err != nil {
		s.metrics.CouponUploads.WithLabelValues("invalid").Inc()
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		sharedobs.WriteJSON(w, status, errorResponse{Status: domain.StatusError, Message: err.Error()})
		return
	}

	count, err := s.uploader.Replace(r.Context(), content)
	if err != nil {
		if domain.KindOf(err) == domain.KindDenied {
			s.metrics.CouponUploads.WithLabelValues("invalid").Inc()
			sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Status: domain.StatusError, Message: err.Error()})
			return
		}
		s.metrics.CouponUploads.WithLabelValues("error").Inc()
		s.logger.Error("coupon upload failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Status: domain.StatusError, Message: err.Error()})
		return
	}

	s.metrics.CouponUploads.WithLabelValues("success").Inc()
	sharedobs.WriteJSON(w, http.StatusOK, uploadResponse{
		Status:        "success",
		Message:       fmt.Sprintf("Coupon data uploaded (%d bytes)", len(content)),
		CouponsLoaded: count,
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.UploadAPIKey == "" {
		return false
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.UploadAPIKey)) == 1
}

// readUpload returns the multipart "file" field when the request is a form
// upload and the raw body otherwise.
func readUpload(r *http.Request, maxBytes int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("multipart field %q: %w", "file", err)
	}
	defer file.Close()
	return io.ReadAll(file)
}
