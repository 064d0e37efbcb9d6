package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ayo6706/payout-settlement/internal/api/middleware"
	"github.com/ayo6706/payout-settlement/internal/api/problem"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
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

// requestActor returns the operator id from the auth context, if it is a uuid.
func requestActor(r *http.Request) (*uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, errors.New("missing user in auth context")
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return nil, errors.New("invalid user_id in auth context")
	}
	return &actorID, nil
}

type page struct {
	limit  int32
	offset int32
}

// parsePage reads limit and offset query parameters, capping limit at 200.
func parsePage(w http.ResponseWriter, r *http.Request) (page, bool) {
	p := page{limit: 50}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return p, false
		}
		p.limit = int32(min(parsed, 200))
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return p, false
		}
		p.offset = int32(parsed)
	}
	return p, true
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
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return http.StatusConflict, "db/retryable-conflict", "concurrent update, retry the request", true
	default:
		return 0, "", "", false
	}
}
