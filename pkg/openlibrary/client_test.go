package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srvURL string) Client {
	// Unthrottled so tests don't wait on the politeness limiter.
	return NewClient(WithBaseURL(srvURL), WithRateLimit(1000))
}

func TestEditionOLID_StripsBooksPrefix(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/books", r.URL.Path)
		assert.Equal(t, "ISBN:9780143126560", r.URL.Query().Get("bibkeys"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "data", r.URL.Query().Get("jscmd"))
		assert.Equal(t, "bibliographer-bot/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ISBN:9780143126560":{"key":"/books/OL26278461M","title":"Getting Things Done"}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).EditionOLID(context.Background(), "9780143126560")
	require.NoError(t, err)
	assert.Equal(t, "OL26278461M", got)
}

func TestEditionOLID_BareKeyPassedThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ISBN:111":{"key":"OL1M"}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).EditionOLID(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, "OL1M", got)
}

func TestEditionOLID_UnknownISBN(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// OpenLibrary omits the bibkey entirely when it has no record.
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EditionOLID(context.Background(), "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditionOLID_EntryWithoutKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ISBN:222":{"title":"No key here"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EditionOLID(context.Background(), "222")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditionOLID_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).EditionOLID(context.Background(), "333")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound, "hard failures must not look like a clean miss")
}
