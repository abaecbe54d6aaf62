package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"rate limited", NewStatusError("a", http.StatusTooManyRequests, errors.New("slow down")), true},
		{"server error", NewStatusError("a", http.StatusBadGateway, errors.New("bad gateway")), true},
		{"bad request", NewStatusError("a", http.StatusBadRequest, errors.New("bad")), false},
		{"unauthorized", NewStatusError("a", http.StatusUnauthorized, errors.New("no")), false},
		{"temporary flag", &AdapterError{Backend: "a", Temporary: true, Err: errors.New("conn reset")}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindRateLimit, KindOf(NewStatusError("a", 429, nil)))
	assert.Equal(t, KindPermission, KindOf(NewStatusError("a", 403, nil)))
	assert.Equal(t, KindNotFound, KindOf(NewStatusError("a", 404, nil)))
	assert.Equal(t, KindValidation, KindOf(NewStatusError("a", 422, nil)))
	assert.Equal(t, KindTransient, KindOf(NewStatusError("a", 503, nil)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestAdapterErrorMessage(t *testing.T) {
	err := NewStatusError("deepseek", 500, errors.New("upstream"))
	assert.Equal(t, "deepseek: upstream", err.Error())
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", err), err.Err))
}
