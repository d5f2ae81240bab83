package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/ayo6706/kenyabank/internal/api/middleware"
	"github.com/ayo6706/kenyabank/internal/api/problem"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var (
	validate     = newValidator()
	kenyanMobile = regexp.MustCompile(`^254\d{9}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ke_phone", func(fl validator.FieldLevel) bool {
		return kenyanMobile.MatchString(fl.Field().String())
	})
	return v
}

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether decoding succeeded.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fields := fieldErrors(err)
		problem.WriteFields(w, r, http.StatusBadRequest, problem.Type("request/validation-failed"),
			http.StatusText(http.StatusBadRequest), "Request validation failed", fields)
		return false
	}
	return true
}

func fieldErrors(err error) []problem.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]problem.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, problem.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "ke_phone":
		return "must be in the format 254XXXXXXXXX"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// parseAmount converts a KES amount such as 2500.50 into cents.
func parseAmount(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}
	if !d.Equal(d.Round(2)) {
		return 0, domain.ErrInvalidAmount
	}
	cents, err := domain.FromDecimal(d)
	if err != nil {
		return 0, domain.ErrInvalidAmount
	}
	return cents, nil
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
}

func principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
	}
	return p, ok
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

type errorMapping struct {
	err         error
	status      int
	problemType string
}

var serviceErrors = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "transaction/invalid-amount"},
	{domain.ErrSelfTransfer, http.StatusBadRequest, "transaction/self-transfer"},
	{domain.ErrLimitExceeded, http.StatusBadRequest, "transaction/limit-exceeded"},
	{domain.ErrInsufficientFunds, http.StatusBadRequest, "transaction/insufficient-funds"},
	{domain.ErrRecipientInactive, http.StatusBadRequest, "transaction/recipient-inactive"},
	{domain.ErrAccountInactive, http.StatusBadRequest, "account/inactive"},
	{domain.ErrRecipientNotFound, http.StatusNotFound, "transaction/recipient-not-found"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "account/not-found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user/not-found"},
	{domain.ErrForbiddenAccount, http.StatusForbidden, "account/forbidden"},
	{domain.ErrDuplicateUser, http.StatusConflict, "user/already-exists"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "auth/invalid-credentials"},
	{domain.ErrUserInactive, http.StatusUnauthorized, "auth/inactive-user"},
	{domain.ErrUserLocked, http.StatusLocked, "auth/account-locked"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "auth/too-many-attempts"},
	{domain.ErrProviderUnavailable, http.StatusServiceUnavailable, "mpesa/provider-unavailable"},
}

// writeServiceError maps domain errors to problem responses. Anything
// unrecognised is logged and reported as a 500 without internal detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			RespondError(w, r, m.status, m.problemType, err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, domain.ErrRecipientUpdateFailed):
		zap.L().Warn(op+" failed and was reversed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transaction/reversed", "Transfer failed; the debited funds were returned")
		return
	case errors.Is(err, domain.ErrCompensationFailed):
		zap.L().Error(op+" left funds unreconciled", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, http.StatusInternalServerError, "transaction/compensation-failed", "Transfer failed; support has been notified")
		return
	}
	if status, pType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pType, msg)
		return
	}
	zap.L().Error(op+" failed", zap.Error(err))
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
