package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

func TestMiddlewareOutcomes(t *testing.T) {
	c := New()
	calls := []error{nil, ledger.ErrInvalidWeight, errors.New("disk"), nil}
	for _, want := range calls {
		ep := c.Middleware("submit_proof")(func(context.Context, any) (any, error) {
			return nil, want
		})
		_, _ = ep(context.Background(), nil)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("submit_proof", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("submit_proof", "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("submit_proof", "error")))
}

func TestNotify(t *testing.T) {
	c := New()
	c.Notify(context.Background(), []ledger.Event{
		{Seq: 1, Kind: ledger.EventTransfer, Amount: 50, Height: 3},
		{Seq: 2, Kind: ledger.EventMint, Amount: 500, Height: 4},
		{Seq: 3, Kind: ledger.EventMint, Amount: 20, Height: 9},
	})
	require.Equal(t, 50.0, testutil.ToFloat64(c.value.WithLabelValues("transfer")))
	require.Equal(t, 520.0, testutil.ToFloat64(c.value.WithLabelValues("mint")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("mint")))
	require.Equal(t, 9.0, testutil.ToFloat64(c.height))
}

func TestHandler(t *testing.T) {
	c := New()
	c.Notify(context.Background(), []ledger.Event{{Kind: ledger.EventMint, Amount: 1}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `proofledger_value_total{kind="mint"} 1`)
}
