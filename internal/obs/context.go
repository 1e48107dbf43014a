package obs

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

type annotationsKey struct{}

// annotations collects identifiers that handlers learn while serving a
// request, such as the report or job id, for the outer log and span.
type annotations struct {
	mu     sync.Mutex
	fields map[string]string
}

// Annotate attaches key=value to the current request. It is a no-op outside
// the logging or tracing middleware.
func Annotate(ctx context.Context, key, value string) {
	ann, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok || value == "" {
		return
	}
	ann.mu.Lock()
	ann.fields[key] = value
	ann.mu.Unlock()
}

// withAnnotations reuses the annotation set of an outer middleware or
// installs a new one.
func withAnnotations(r *http.Request) (*http.Request, *annotations) {
	if ann, ok := r.Context().Value(annotationsKey{}).(*annotations); ok {
		return r, ann
	}
	ann := &annotations{fields: map[string]string{}}
	return r.WithContext(context.WithValue(r.Context(), annotationsKey{}, ann)), ann
}

// each visits the annotations in key order.
func (a *annotations) each(fn func(key, value string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.fields))
	for k := range a.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(k, a.fields[k])
	}
}
