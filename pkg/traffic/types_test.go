package traffic

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderCaseInsensitive(t *testing.T) {
	h := FromHTTP(http.Header{"Content-Type": {"text/html; charset=utf-8"}, "X-Frame-Options": {"DENY", "SAMEORIGIN"}})
	assert.Equal(t, "DENY", h.Get("x-frame-options"))
	h.Del("X-FRAME-OPTIONS")
	assert.Empty(t, h.Get("x-frame-options"))
	assert.Empty(t, Header(nil).Get("anything"))
}

func TestResponseIsHTML(t *testing.T) {
	r := NewResponse()
	assert.False(t, r.IsHTML())
	r.Headers.Set("Content-Type", "text/html; charset=utf-8")
	assert.True(t, r.IsHTML())
	r.Headers.Set("Content-Type", "application/json")
	assert.False(t, r.IsHTML())
	r.Headers.Set("Content-Type", "TEXT/HTML;;bad")
	assert.True(t, r.IsHTML())
}
