package statuspage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/sbrokerd/internal/broker"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningBroker(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New(broker.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return b
}

func TestFullReportEmptyBroker(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "SERVERS (0)")
	assert.Contains(t, body, "CLIENTS (0)")
	assert.Contains(t, body, "CONNECT NOTIFICATIONS (0)")
	assert.Contains(t, body, "DISCONNECT NOTIFICATIONS (0)")
	assert.Contains(t, body, "CLIENT-DETACH NOTIFICATIONS (0)")
}

func TestServersSectionRoute(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodGet, "/s", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SERVERS (0)")
}

func TestPostVerboseCommand(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("verbose=2"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "verbose=2 applied")
}

func TestPostConsoleCommand(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("console=0"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console=0 applied")
}

func TestPostUnknownCommand(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("bogus=1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `unknown command "bogus"`)
}

func TestPostDisconnectUnknownServer(t *testing.T) {
	b := newRunningBroker(t)
	r := newRouter(b, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("disconnect=1000:1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "disconnect=1000:1 failed")
}

func TestParsePartyIDForms(t *testing.T) {
	id, err := parsePartyID("1000:42")
	require.NoError(t, err)
	assert.Equal(t, party.ID{ExtendedID: 1000, LocalID: 42}, id)

	id, err = parsePartyID("42")
	require.NoError(t, err)
	assert.Equal(t, party.ID{LocalID: 42}, id)

	_, err = parsePartyID("garbage")
	assert.Error(t, err)
}
