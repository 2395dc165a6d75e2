package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"locatorcheck/internal/config"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/proxy"
	"locatorcheck/internal/script"
	"locatorcheck/internal/service"
	"locatorcheck/pkg/model"
)

type fakeService struct {
	got    model.VerificationRequest
	events chan model.Event
}

func (f *fakeService) RequestVerification(_ context.Context, req model.VerificationRequest) (model.DeliveryOutcome, error) {
	f.got = req
	if req.Locator == "" {
		return model.DeliveryOutcome{}, fmt.Errorf("%w: empty locator", service.ErrInvalidRequest)
	}
	used := model.StrategyDirectAccess
	return model.DeliveryOutcome{
		RequestID:    "r1",
		Origin:       model.OriginLocal,
		Succeeded:    true,
		StrategyUsed: &used,
		Attempts:     []model.DeliveryAttempt{{Strategy: used, Outcome: model.OutcomeSuccess}},
	}, nil
}

func (f *fakeService) Script(locator string) (model.Script, error) {
	if locator == "" {
		return "", fmt.Errorf("%w: empty locator", service.ErrInvalidRequest)
	}
	return script.Synthesize(locator), nil
}

func (f *fakeService) Strategies() []model.Strategy {
	return []model.Strategy{model.StrategyDirectAccess, model.StrategyManual}
}

func (f *fakeService) SubscribeEvents() (<-chan model.Event, func()) {
	return f.events, func() {}
}

func (f *fakeService) Close() error { return nil }

func newTestServer(t *testing.T, svc *fakeService, px *proxy.Server) *httptest.Server {
	t.Helper()
	s := New(config.Server{Listen: ":0", AllowedOrigins: []string{"http://localhost:5173"}}, svc, px, logger.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestVerify(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(t, svc, nil)

	body := `{"targetUrl":"http://localhost:5173/x","locator":"//button[@id='login']","validated":true}`
	resp, err := http.Post(ts.URL+"/api/verify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "//button[@id='login']", svc.got.Locator)
	assert.True(t, svc.got.Validated)
	assert.True(t, gjson.GetBytes(raw, "succeeded").Bool())
	assert.Equal(t, "direct_access", gjson.GetBytes(raw, "strategyUsed").String())
	assert.Equal(t, "success", gjson.GetBytes(raw, "attempts.0.outcome").String())
}

func TestVerifyErrors(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Post(ts.URL+"/api/verify", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/verify", "application/json", strings.NewReader(`{"targetUrl":"x","locator":""}`))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, gjson.GetBytes(raw, "error").String(), "empty locator")
}

func TestScriptEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/api/script?locator=" + "%2F%2Fa")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(raw), script.Literal("//a"))

	resp, err = http.Get(ts.URL + "/api/script")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndStrategies(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "healthy", gjson.GetBytes(raw, "status").String())

	resp, err = http.Get(ts.URL + "/api/strategies")
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `["direct_access","manual"]`, string(raw))
}

func TestProxyRoutesMounted(t *testing.T) {
	px := proxy.NewServer(config.NewConfig().Proxy, nil, logger.NewNop())
	ts := newTestServer(t, &fakeService{}, px)

	resp, err := http.Get(ts.URL + "/proxy")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/verify", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/api/verify", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventsStream(t *testing.T) {
	svc := &fakeService{events: make(chan model.Event, 1)}
	ts := newTestServer(t, svc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	svc.events <- model.Event{Type: "attempt", Request: "r1", Strategy: model.StrategyDirectAccess, Outcome: model.OutcomeSuccess}
	close(svc.events)

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Contains(t, lines, "event: attempt")
	var data string
	for _, l := range lines {
		if strings.HasPrefix(l, "data: ") {
			data = strings.TrimPrefix(l, "data: ")
		}
	}
	assert.Equal(t, "r1", gjson.Get(data, "requestId").String())
	assert.Equal(t, "direct_access", gjson.Get(data, "strategy").String())
}
