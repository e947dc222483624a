package statusclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/clock"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/popup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchDecodesPublicStatus(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"due","message":"Invoice overdue","payment_status":"unpaid","next_billing_date":"2026-06-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"}, zap.NewNop())
	require.NoError(t, err)

	status, err := c.Fetch(context.Background(), " acme ")
	require.NoError(t, err)
	assert.Equal(t, "/api/maintenance/status/acme", path.Load())
	assert.Equal(t, clientdomain.StatusDue, status.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, status.PaymentStatus)
	assert.Equal(t, "Invoice overdue", status.Message)
	require.NotNil(t, status.NextBillingDate)
	assert.True(t, status.NextBillingDate.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"active","message":"","payment_status":"paid","next_billing_date":null}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, RetryCount: 2}, zap.NewNop())
	require.NoError(t, err)

	status, err := c.Fetch(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, status.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchReportsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestNewAndFetchValidateInput(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingBaseURL)

	c, err := New(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrMissingCode)
}

type stubFetcher struct {
	status maintenancedomain.PublicStatus
	err    error
}

func (s *stubFetcher) Fetch(context.Context, string) (maintenancedomain.PublicStatus, error) {
	return s.status, s.err
}

func TestPollerFailsOpen(t *testing.T) {
	var shown int
	p := NewPoller(&stubFetcher{err: errors.New("connection refused")}, clock.NewFakeClock(time.Now()), PollerConfig{ClientCode: "acme"}, zap.NewNop(), func(popup.Notice) { shown++ })

	_, displayed := p.Check(context.Background())
	assert.False(t, displayed)
	assert.Zero(t, shown)
}

func TestPollerHonoursDismissalCooldown(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	fetcher := &stubFetcher{status: maintenancedomain.PublicStatus{
		Status:        clientdomain.StatusDue,
		PaymentStatus: clientdomain.PaymentStatusUnpaid,
	}}
	p := NewPoller(fetcher, clk, PollerConfig{ClientCode: "acme", DismissCooldown: time.Hour}, zap.NewNop(), nil)

	notice, displayed := p.Check(context.Background())
	require.True(t, displayed)
	assert.Equal(t, popup.SeverityDue, notice.Severity)

	p.Dismiss()
	_, displayed = p.Check(context.Background())
	assert.False(t, displayed)

	clk.Advance(time.Hour)
	_, displayed = p.Check(context.Background())
	assert.True(t, displayed)

	fetcher.status.Status = clientdomain.StatusSuspended
	p.Dismiss()
	notice, displayed = p.Check(context.Background())
	assert.True(t, displayed)
	assert.False(t, notice.Dismissible)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	var checks int32
	fetcher := &countingFetcher{calls: &checks}
	p := NewPoller(fetcher, clock.SystemClock{}, PollerConfig{ClientCode: "acme", Interval: 10 * time.Millisecond}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&checks) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

type countingFetcher struct {
	calls *int32
}

func (f *countingFetcher) Fetch(context.Context, string) (maintenancedomain.PublicStatus, error) {
	atomic.AddInt32(f.calls, 1)
	return maintenancedomain.DefaultPublicStatus(), nil
}
