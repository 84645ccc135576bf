package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/juggajay/siteproof-v2-sub005/pkg/apierror"
	"github.com/juggajay/siteproof-v2-sub005/pkg/response"
)

// Recovery turns a handler panic into a 500 envelope. The request id is echoed in
// the error meta so a field report can be matched to the logged stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := GetRequestID(r.Context())
			log.Printf("[Recovery] PANIC %s %s req=%s user=%s: %v\n%s",
				r.Method, r.URL.Path, requestID, r.Header.Get(HeaderUserID), rec, debug.Stack())

			apiErr := apierror.InternalError("internal server error")
			if requestID != "" {
				apiErr = apiErr.WithMeta("request_id", requestID)
			}
			response.Error(w, apiErr)
		}()

		next.ServeHTTP(w, r)
	})
}
