package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/validation"
)

// HeaderRequestID carries the request ID on requests and responses.
const HeaderRequestID = "X-Request-Id"

// RequestID ensures every request carries an ID. A well-formed UUID sent by
// the client is kept; anything else is replaced. The ID is echoed in the
// response and stored in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" || validation.New().OptionalUUID("request_id", id).HasErrors() {
				id = uuid.NewString()
			}
			r.Header.Set(HeaderRequestID, id)
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
		})
	}
}
