package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// Problem type URIs for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "https://sensorhost.dev/problems/not-found"
	ProblemTypeBadRequest  = "https://sensorhost.dev/problems/bad-request"
	ProblemTypeConflict    = "https://sensorhost.dev/problems/conflict"
	ProblemTypeTimeout     = "https://sensorhost.dev/problems/timeout"
	ProblemTypeInternal    = "https://sensorhost.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://sensorhost.dev/problems/rate-limited"
)

// Problem is an RFC 7807 Problem Details response body.
type Problem struct {
	Type     string `json:"type" example:"https://sensorhost.dev/problems/bad-request"`
	Title    string `json:"title" example:"Bad Request"`
	Status   int    `json:"status" example:"400"`
	Detail   string `json:"detail,omitempty" example:"display name must be 1-255 characters"`
	Instance string `json:"instance,omitempty" example:"/api/v1/start-device-init"`
}

// WriteProblem writes p as an application/problem+json response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// statusForKind maps an apperr.Kind to its HTTP status, exactly per
// spec.md §6: NotFound->404, AlreadyExists->409,
// InvalidInput|FailedPrecondition->400, Timeout->504,
// IO|Internal|Unknown->500.
func statusForKind(k apperr.Kind) (status int, title string) {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound, "Not Found"
	case apperr.AlreadyExists:
		return http.StatusConflict, "Conflict"
	case apperr.InvalidInput, apperr.FailedPrecondition:
		return http.StatusBadRequest, "Bad Request"
	case apperr.Timeout:
		return http.StatusGatewayTimeout, "Gateway Timeout"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func problemTypeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return ProblemTypeNotFound
	case http.StatusConflict:
		return ProblemTypeConflict
	case http.StatusGatewayTimeout:
		return ProblemTypeTimeout
	case http.StatusBadRequest:
		return ProblemTypeBadRequest
	default:
		return ProblemTypeInternal
	}
}

// WriteError translates err (ideally an apperr-classified error) into the
// matching Problem response.
func WriteError(w http.ResponseWriter, err error, instance string) {
	status, title := statusForKind(apperr.KindOf(err))
	WriteProblem(w, Problem{
		Type:     problemTypeForStatus(status),
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: instance,
	})
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeRateLimited,
		Title:    "Too Many Requests",
		Status:   http.StatusTooManyRequests,
		Detail:   detail,
		Instance: instance,
	})
}

// InternalError writes a 500 problem response for failures with no
// underlying apperr classification (e.g. a recovered panic).
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response for a request malformed before
// it reaches any apperr-producing layer (bad JSON, missing multipart
// field).
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: instance,
	})
}
