package audible

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemJSON = `{
	"asin": "B0030CVQ0S",
	"title": "Getting Things Done",
	"authors": [{"name": "David Allen"}],
	"product_images": {"252": "https://img.example/252.jpg", "500": "https://img.example/500.jpg"},
	"purchase_date": "2020-01-15T05:00:00Z"
}`

func TestLibrary_SinglePage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.0/library", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "1000", r.URL.Query().Get("num_results"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "product_desc, media, product_attrs", r.URL.Query().Get("response_groups"))
		_, _ = fmt.Fprintf(w, `{"items":[%s]}`, itemJSON)
	}))
	defer srv.Close()

	books, err := NewClient("tok", WithBaseURL(srv.URL)).Library(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)

	book := books["B0030CVQ0S"]
	assert.Equal(t, "Getting Things Done", book.Title)
	assert.Equal(t, []string{"David Allen"}, book.Authors)
	assert.Equal(t, "B0030CVQ0S", book.AudibleASIN)
	assert.Equal(t, "https://img.example/500.jpg", book.CoverURL, "largest product image wins")
	assert.Equal(t, "2020-01-15", book.PurchaseDate)
}

func TestLibrary_Paginates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("page") {
		case "1":
			var b strings.Builder
			b.WriteString(`{"items":[`)
			for i := range pageSize {
				if i > 0 {
					b.WriteByte(',')
				}
				fmt.Fprintf(&b, `{"asin":"ASIN%04d","title":"Book %d"}`, i, i)
			}
			b.WriteString(`]}`)
			_, _ = w.Write([]byte(b.String()))
		case "2":
			_, _ = fmt.Fprintf(w, `{"items":[%s]}`, itemJSON)
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	books, err := NewClient("tok", WithBaseURL(srv.URL)).Library(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, pageSize+1)
	assert.Equal(t, int32(2), calls.Load(), "a short page ends pagination")
}

func TestLibrary_Unauthorized(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			_, err := NewClient("stale", WithBaseURL(srv.URL)).Library(context.Background())
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestLibrary_SkipsItemsWithoutASIN(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"items":[{"title":"No ASIN"},%s]}`, itemJSON)
	}))
	defer srv.Close()

	books, err := NewClient("tok", WithBaseURL(srv.URL)).Library(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Contains(t, books, "B0030CVQ0S")
}

func TestLibrary_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprintf(w, `{"items":[%s]}`, itemJSON)
	}))
	defer srv.Close()

	books, err := NewClient("tok", WithBaseURL(srv.URL)).Library(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDatePart(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"2020-01-15T05:00:00Z", "2020-01-15"},
		{"2020-01-15", "2020-01-15"},
		{"January 15, 2020", "January 15"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, datePart(tc.in), "input %q", tc.in)
	}
}

func TestLargestImage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "big", largestImage(map[string]string{
		"252": "small", "500": "mid", "1024": "big",
	}))
	assert.Equal(t, "only", largestImage(map[string]string{"weird": "only"}))
	assert.Empty(t, largestImage(nil))
}
