package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "deadline exceeded" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", Transient(errors.New("boom"), 503), true},
		{"wrapped transient", fmt.Errorf("outer: %w", Transient(errors.New("boom"), 0)), true},
		{"eris wrapped transient", eris.Wrap(Transient(errors.New("boom"), 429), "fetch"), true},
		{"net timeout", fakeTimeout{}, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"message heuristic", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure", errors.New("lookup example.com: no such host"), true},
		{"plain error", errors.New("invalid response shape"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorMessage(t *testing.T) {
	withStatus := Transient(errors.New("slow down"), http.StatusTooManyRequests)
	assert.Contains(t, withStatus.Error(), "429")
	assert.Contains(t, withStatus.Error(), "slow down")

	withoutStatus := Transient(errors.New("conn dropped"), 0)
	assert.Equal(t, "conn dropped", withoutStatus.Error())
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	assert.ErrorIs(t, Transient(inner, 500), inner)
}

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientStatus(code), "status %d", code)
	}
}
