package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locatorcheck/internal/config"
	"locatorcheck/internal/delivery"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/script"
	"locatorcheck/pkg/model"
)

type fakeEval struct {
	replies []string
	err     error
	exprs   []string
}

func (e *fakeEval) eval(_ context.Context, expr string) (json.RawMessage, error) {
	e.exprs = append(e.exprs, expr)
	if e.err != nil {
		return nil, e.err
	}
	if len(e.replies) == 0 {
		return json.RawMessage("null"), nil
	}
	r := e.replies[0]
	e.replies = e.replies[1:]
	return json.RawMessage(r), nil
}

func testFrame(e *fakeEval) *Frame {
	return &Frame{
		eval:        e.eval,
		selector:    "#preview",
		url:         "https://example.com/",
		proxyBase:   "http://localhost:8000",
		loadTimeout: time.Second,
		log:         logger.NewNop(),
	}
}

func TestInjectStatusMapping(t *testing.T) {
	cases := []struct {
		reply string
		want  error
	}{
		{`{"status":"ok","result":{"status":"match","summary":"<button> #login"}}`, nil},
		{`{"status":"denied"}`, delivery.ErrAccessDenied},
		{`{"status":"loading"}`, delivery.ErrNotLoaded},
		{`{"status":"missing"}`, delivery.ErrFrameMissing},
	}
	for _, c := range cases {
		f := testFrame(&fakeEval{replies: []string{c.reply}})
		err := f.Inject(context.Background(), model.Script("x()"))
		if c.want == nil {
			assert.NoError(t, err, c.reply)
		} else {
			assert.ErrorIs(t, err, c.want, c.reply)
		}
	}

	f := testFrame(&fakeEval{replies: []string{`{"status":"weird"}`}})
	assert.Error(t, f.Inject(context.Background(), model.Script("x()")))
}

func TestInjectEmbedsScriptThroughLiteral(t *testing.T) {
	e := &fakeEval{replies: []string{`{"status":"ok"}`}}
	f := testFrame(e)
	s := script.Synthesize(`//a[text()="</script>"]`)
	require.NoError(t, f.Inject(context.Background(), s))

	require.Len(t, e.exprs, 1)
	assert.Contains(t, e.exprs[0], script.Literal(s.String()))
	assert.Contains(t, e.exprs[0], script.Literal("#preview"))
	assert.NotContains(t, e.exprs[0], "</script>")
}

func TestFrameRefusesAfterCancel(t *testing.T) {
	e := &fakeEval{}
	f := testFrame(e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.Inject(ctx, model.Script("x")), context.Canceled)
	assert.ErrorIs(t, f.WaitLoaded(ctx), context.Canceled)
	_, err := f.PostMessage(ctx, delivery.NewMessage("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.Navigate(ctx, "http://localhost:8000/proxy?url=x", true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.exprs)
}

func TestWaitLoaded(t *testing.T) {
	f := testFrame(&fakeEval{replies: []string{`"ok"`}})
	require.NoError(t, f.WaitLoaded(context.Background()))

	f = testFrame(&fakeEval{replies: []string{`"timeout"`}})
	assert.ErrorIs(t, f.WaitLoaded(context.Background()), delivery.ErrNotLoaded)

	f = testFrame(&fakeEval{replies: []string{`"missing"`}})
	assert.ErrorIs(t, f.WaitLoaded(context.Background()), delivery.ErrFrameMissing)
}

func TestWaitLoadedUsesContextDeadline(t *testing.T) {
	e := &fakeEval{replies: []string{`"ok"`}}
	f := testFrame(e)
	f.loadTimeout = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, f.WaitLoaded(ctx))
	assert.NotContains(t, e.exprs[0], "3600000")
}

func TestPostMessage(t *testing.T) {
	msg := delivery.NewMessage("x()")
	e := &fakeEval{replies: []string{`{"type":"locatorcheck:ack","id":"` + msg.ID + `","status":"match"}`}}
	f := testFrame(e)
	f.proxied = true

	ack, err := f.PostMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, ack.Acknowledges(msg))
	assert.Equal(t, "match", ack.Status)
	assert.Contains(t, e.exprs[0], script.Literal(msg.ID))
	assert.Contains(t, e.exprs[0], script.Literal(delivery.MessageTypeAck))
}

func TestPostMessageTimeout(t *testing.T) {
	f := testFrame(&fakeEval{replies: []string{`null`}})
	_, err := f.PostMessage(context.Background(), delivery.NewMessage("x"))
	assert.ErrorIs(t, err, delivery.ErrDeliveryTimeout)
}

func TestNavigateReturnsNewHandle(t *testing.T) {
	e := &fakeEval{replies: []string{`"ok"`}}
	f := testFrame(e)
	next, err := f.Navigate(context.Background(), "http://localhost:8000/proxy?url=https%3A%2F%2Fexample.com%2F", true)
	require.NoError(t, err)

	assert.True(t, next.Proxied())
	assert.False(t, f.Proxied())
	assert.Equal(t, "https://example.com/", f.URL())
	assert.True(t, next.(*Frame).Shows("https://example.com/"))
	assert.Contains(t, e.exprs[0], "f.src = ")

	_, err = testFrame(&fakeEval{replies: []string{`"missing"`}}).Navigate(context.Background(), "https://a.test", false)
	assert.ErrorIs(t, err, delivery.ErrFrameMissing)
}

func TestEvaluationErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	f := testFrame(&fakeEval{err: boom})
	assert.ErrorIs(t, f.Inject(context.Background(), model.Script("x")), boom)
}

func TestSelectPage(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "sw", Type: devtool.ServiceWorker, URL: "http://localhost:5173/sw.js"},
		{ID: "other", Type: devtool.Page, URL: "https://news.test/"},
		{ID: "host", Type: devtool.Page, URL: "http://localhost:5173/app"},
	}
	assert.Equal(t, "host", selectPage(targets, "http://localhost:5173").ID)
	assert.Equal(t, "other", selectPage(targets, "").ID)
	assert.Nil(t, selectPage(targets, "http://nope"))
}

func TestProxiedURL(t *testing.T) {
	assert.True(t, isProxiedURL("http://localhost:8000", "http://localhost:8000/proxy?url=x"))
	assert.False(t, isProxiedURL("", "http://localhost:8000/proxy?url=x"))
	assert.False(t, isProxiedURL("http://localhost:8000", "https://example.com/"))
	assert.Equal(t, "https://a.test/?q=1", proxiedTarget("http://localhost:8000/proxy?url=https%3A%2F%2Fa.test%2F%3Fq%3D1"))
}

func TestExceptionError(t *testing.T) {
	desc := "SyntaxError: Unexpected token"
	err := exceptionError(&runtime.ExceptionDetails{
		Text:       "Uncaught",
		LineNumber: 3,
		Exception:  &runtime.RemoteObject{Description: &desc},
	})
	assert.ErrorIs(t, err, ErrEvaluation)
	assert.True(t, strings.Contains(err.Error(), desc))
}

func TestTargetIDIsStableAcrossConnect(t *testing.T) {
	m := New(Options{Host: config.Host{PageURLPrefix: "http://localhost:5173", FrameSelector: "#preview"}})
	before := m.TargetID()
	m.page = &devtool.Target{ID: "PAGE", Type: devtool.Page, URL: "http://localhost:5173/"}
	assert.Equal(t, before, m.TargetID())
	assert.Equal(t, model.TargetID("http://localhost:5173|#preview"), before)
}
