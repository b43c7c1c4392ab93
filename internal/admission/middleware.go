package admission

import (
	"errors"
	"net/http"
	"strconv"

	"loyalgate/internal/admission/models"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/httputil"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitStatus    = "X-RateLimit-Status"
	HeaderRetryAfter         = "Retry-After"
)

// Middleware admits each request for route before calling next. Rejected requests are
// answered here and never reach next.
func (p *Pipeline) Middleware(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, err := p.Admit(r.Context(), r, route)
			if err != nil {
				WriteRejection(w, err)
				return
			}
			decision := rc.RateLimit()
			addRateLimitHeaders(w, &decision)
			next.ServeHTTP(w, r.WithContext(models.WithRequestContext(r.Context(), rc)))
		})
	}
}

// unavailableRetryAfterSeconds is the back-off hint sent with 503s.
const unavailableRetryAfterSeconds = 5

// WriteRejection answers a failed admission with the generic external code. Errors that
// are not a *Rejection are treated as internal failures.
func WriteRejection(w http.ResponseWriter, err error) {
	kind := dErrors.CodeInternal
	var rej *Rejection
	if errors.As(err, &rej) {
		kind = rej.Kind
		addRateLimitHeaders(w, rej.Decision)
	}
	resp := responseFor(kind)

	switch resp.status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="loyalgate"`)
	case http.StatusTooManyRequests:
		if rej != nil && rej.Decision != nil {
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(rej.Decision.RetryAfterSeconds()))
		} else {
			w.Header().Set(HeaderRetryAfter, "1")
		}
	case http.StatusServiceUnavailable:
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(unavailableRetryAfterSeconds))
	}
	httputil.WriteJSON(w, resp.status, httputil.ErrorResponse{
		Error:            resp.code,
		ErrorDescription: resp.message,
	})
}

func addRateLimitHeaders(w http.ResponseWriter, d *ratelimitmodels.Decision) {
	if d == nil || d.Limit <= 0 {
		return
	}
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	if d.Degraded {
		w.Header().Set(HeaderRateLimitStatus, "degraded")
	}
}
