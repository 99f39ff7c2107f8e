// Package transport is the HTTP edge of the portal: routing, request
// decoding, guard admission, and the JSON error envelope.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/identity"
	"guestgate/internal/models"
	"guestgate/internal/session"
	domainerrors "guestgate/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

type signupRequest struct {
	Email            string `json:"email"`
	DateOfBirth      string `json:"date_of_birth"`
	Language         string `json:"language"`
	MarketingConsent bool   `json:"marketing_consent"`
}

type loginRequest struct {
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	VisitCount int    `json:"visit_count"`
	Tier       string `json:"tier"`
}

type voucherResponse struct {
	Code        string    `json:"code"`
	Type        string    `json:"type"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
	Redeemed    bool      `json:"redeemed"`
}

type voucherListResponse struct {
	Vouchers []voucherResponse `json:"vouchers"`
}

type sessionResponse struct {
	Token    string            `json:"token"`
	User     userResponse      `json:"user"`
	Vouchers []voucherResponse `json:"vouchers,omitempty"`
}

type progressResponse struct {
	CurrentTier     string `json:"current_tier"`
	NextTier        string `json:"next_tier,omitempty"`
	VisitsToNext    int    `json:"visits_to_next"`
	ProgressPercent int    `json:"progress_percent"`
	VisitCount      int    `json:"visit_count"`
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidInput, "invalid request body"))
		return
	}
	birthDate, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidInput, "date_of_birth must be YYYY-MM-DD"))
		return
	}
	mac, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.sessions.Signup(r.Context(), session.SignupParams{
		Email:            strings.TrimSpace(strings.ToLower(req.Email)),
		DateOfBirth:      birthDate,
		Language:         req.Language,
		MarketingConsent: req.MarketingConsent,
		MAC:              mac,
		SourceIP:         identity.SourceIP(r),
		UserAgent:        r.UserAgent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionResponse(result))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidInput, "invalid request body"))
		return
	}
	birthDate, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidInput, "date_of_birth must be YYYY-MM-DD"))
		return
	}
	mac, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.sessions.Login(r.Context(), session.LoginParams{
		Email:       strings.TrimSpace(strings.ToLower(req.Email)),
		DateOfBirth: birthDate,
		MAC:         mac,
		SourceIP:    identity.SourceIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(result))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	claims, err := s.guestClaims(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidInput, "voucher code is required"))
		return
	}
	redeemer, err := uuid.Parse(claims.UserID)
	if err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token"))
		return
	}

	redeemed, err := s.vouchers.Redeem(r.Context(), req.Code, redeemer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toVoucherResponse(redeemed))
}

func (s *Server) handleVoucherList(w http.ResponseWriter, r *http.Request) {
	claims, err := s.guestClaims(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token"))
		return
	}

	vouchers, err := s.vouchers.ListForUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := voucherListResponse{Vouchers: make([]voucherResponse, 0, len(vouchers))}
	for _, v := range vouchers {
		resp.Vouchers = append(resp.Vouchers, toVoucherResponse(v))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoyaltyProgress(w http.ResponseWriter, r *http.Request) {
	claims, err := s.guestClaims(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		s.writeError(w, r, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token"))
		return
	}
	user, err := s.users.FindByID(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, domainerrors.Wrap(err, domainerrors.CodeNotFound, "account not found"))
		return
	}

	progress := s.loyalty.Progress(user.VisitCount)
	resp := progressResponse{
		CurrentTier:     string(progress.CurrentTier),
		VisitsToNext:    progress.VisitsToNext,
		ProgressPercent: progress.ProgressPercent,
		VisitCount:      user.VisitCount,
	}
	if progress.NextTier != nil {
		resp.NextTier = string(*progress.NextTier)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFallback gives the portal detector first refusal on every unrouted
// request; genuine strays get a JSON 404.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if s.detector.Handle(w, r) {
		return
	}
	s.writeError(w, r, domainerrors.New(domainerrors.CodeNotFound, "resource not found"))
}

func (s *Server) guestClaims(r *http.Request) (*session.GuestClaims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "missing bearer token")
	}
	return s.minter.Parse(token)
}

func toSessionResponse(result *session.Result) sessionResponse {
	resp := sessionResponse{
		Token: result.Token,
		User: userResponse{
			ID:         result.User.ID.String(),
			Email:      result.User.Email,
			VisitCount: result.User.VisitCount,
			Tier:       result.User.LoyaltyTier,
		},
	}
	for _, v := range result.Vouchers {
		resp.Vouchers = append(resp.Vouchers, toVoucherResponse(v))
	}
	return resp
}

func toVoucherResponse(v *models.Voucher) voucherResponse {
	return voucherResponse{
		Code:        v.Code,
		Type:        string(v.Type),
		Value:       v.Value,
		Description: v.Description,
		ExpiresAt:   v.ExpiresAt,
		Redeemed:    v.Redeemed,
	}
}

// statusForCode maps domain error codes to HTTP statuses.
func statusForCode(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case domainerrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeIdentificationRequired, domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeForbidden:
		return http.StatusForbidden
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case domainerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domainerrors.Error
	if !errors.As(err, &derr) {
		s.logger.Error("unclassified handler error", "error", err, "path", r.URL.Path)
		derr = &domainerrors.Error{Code: domainerrors.CodeInternal, Message: "something went wrong, please try again"}
	}

	status := statusForCode(derr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "path", r.URL.Path, "status", status)
	}
	s.writeJSON(w, status, errorResponse{Error: errorBody{
		Code:       string(derr.Code),
		Message:    derr.Message,
		Suggestion: derr.Suggestion,
	}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
