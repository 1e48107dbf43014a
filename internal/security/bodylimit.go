package security

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/noah-isme/backend-komisi/internal/common"
)

// BodyLimit caps the size of ledger uploads. Bodies are streamed through
// http.MaxBytesReader, so an oversized multipart upload fails while it is
// being parsed and TooLarge reports it.
type BodyLimit struct {
	Max int64
}

// Middleware rejects bodies whose declared length exceeds Max up front and
// limits the rest while they are read.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge, LimitMessage(b.Max), nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

// TooLarge reports whether err was caused by reading past a BodyLimit and
// returns the limit that was hit.
func TooLarge(err error) (int64, bool) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return mbe.Limit, true
	}
	return 0, false
}

// LimitMessage is the client-facing message for an oversized upload.
func LimitMessage(limit int64) string {
	return "upload exceeds " + strconv.FormatInt(limit, 10) + " bytes"
}
