package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	var reads []time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reads = append(reads, Now(r.Context()))
		time.Sleep(5 * time.Millisecond)
		reads = append(reads, Now(r.Context()))
	}))

	before := time.Now()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/certificates", nil))
	after := time.Now()

	require.Len(t, reads, 2)
	assert.Equal(t, reads[0], reads[1], "time is stable within a request")
	assert.False(t, reads[0].Before(before))
	assert.False(t, reads[0].After(after))
}

func TestWithTime(t *testing.T) {
	issued := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	later := issued.Add(time.Hour)

	ctx := WithTime(t.Context(), issued)
	assert.Equal(t, issued, Now(ctx))
	assert.Equal(t, later, Now(WithTime(ctx, later)))
}
