package chain

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/config"
	"github.com/vulpemventures/go-bitcoin/errs"
)

var errBoom = errors.New("boom")

type fakeService struct {
	err   error
	block bool
	count uint32
	fee   uint64
}

func (f *fakeService) do(ctx context.Context) error {
	atomic.AddUint32(&f.count, 1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeService) calls() int {
	return int(atomic.LoadUint32(&f.count))
}

func (f *fakeService) GetUTXOs(ctx context.Context, _, _ string, _ int) ([]UTXO, error) {
	if err := f.do(ctx); err != nil {
		return nil, err
	}
	return []UTXO{{TxID: "aa", Value: f.fee}}, nil
}

func (f *fakeService) GetTransaction(ctx context.Context, txid string) (*TxInfo, error) {
	if err := f.do(ctx); err != nil {
		return nil, err
	}
	return &TxInfo{TxID: txid}, nil
}

func (f *fakeService) GetTransactions(ctx context.Context, _, _ string, _ int) ([]TxInfo, error) {
	if err := f.do(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeService) SendRawTransaction(ctx context.Context, _ []byte) (string, error) {
	if err := f.do(ctx); err != nil {
		return "", err
	}
	return "txid", nil
}

func (f *fakeService) EstimateFee(ctx context.Context, _ int) (uint64, error) {
	if err := f.do(ctx); err != nil {
		return 0, err
	}
	return f.fee, nil
}

func (f *fakeService) BlockCount(ctx context.Context) (uint32, error) {
	if err := f.do(ctx); err != nil {
		return 0, err
	}
	return 100, nil
}

func testConfig() *config.Context {
	cfg := config.Default()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg.Logger = logrus.NewEntry(logger)
	cfg.ServiceRateLimit = 10000
	cfg.ServiceTimeout = time.Second
	return cfg
}

func TestMultiplexerFailover(t *testing.T) {
	bad := &fakeService{err: errBoom}
	good := &fakeService{fee: 2000}

	m, err := NewMultiplexer(testConfig(),
		Provider{Name: "good", Service: good, Priority: 2},
		Provider{Name: "bad", Service: bad, Priority: 1},
	)
	require.NoError(t, err)

	fee, err := m.EstimateFee(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), fee)
	require.Equal(t, 1, bad.calls())
	require.Equal(t, 1, good.calls())

	require.Equal(t, float64(1), testutil.ToFloat64(
		m.requests.WithLabelValues("bad", "estimatefee", resultError)))
	require.Equal(t, float64(1), testutil.ToFloat64(
		m.requests.WithLabelValues("good", "estimatefee", resultOK)))
}

func TestMultiplexerAllFail(t *testing.T) {
	a, b := &fakeService{err: errBoom}, &fakeService{err: errBoom}
	m, err := NewMultiplexer(testConfig(),
		Provider{Name: "a", Service: a},
		Provider{Name: "b", Service: b},
	)
	require.NoError(t, err)

	_, err = m.BlockCount(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrServiceUnavailable))
	require.True(t, errors.Is(err, errBoom))
	require.Equal(t, 1, a.calls())
	require.Equal(t, 1, b.calls())
}

func TestMultiplexerMaxErrors(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceMaxErrors = 1

	a, b := &fakeService{err: errBoom}, &fakeService{}
	m, err := NewMultiplexer(cfg,
		Provider{Name: "a", Service: a},
		Provider{Name: "b", Service: b},
	)
	require.NoError(t, err)

	_, err = m.GetUTXOs(context.Background(), "addr", "", 0)
	require.True(t, errors.Is(err, errs.ErrServiceUnavailable))
	require.Equal(t, 1, a.calls())
	require.Equal(t, 0, b.calls())
}

func TestMultiplexerFinalErrors(t *testing.T) {
	a := &fakeService{err: ErrNotFound}
	b := &fakeService{}
	m, err := NewMultiplexer(testConfig(),
		Provider{Name: "a", Service: a},
		Provider{Name: "b", Service: b},
	)
	require.NoError(t, err)

	_, err = m.GetTransaction(context.Background(), "ff")
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, errs.ErrServiceUnavailable))
	require.Equal(t, 0, b.calls())
	require.Equal(t, float64(1), testutil.ToFloat64(
		m.requests.WithLabelValues("a", "gettransaction", resultFinal)))

	a.err = ErrRejected
	_, err = m.SendRawTransaction(context.Background(), []byte{0x01})
	require.True(t, errors.Is(err, ErrRejected))
	require.Equal(t, 0, b.calls())
}

func TestMultiplexerTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceTimeout = 20 * time.Millisecond

	slow := &fakeService{block: true}
	m, err := NewMultiplexer(cfg, Provider{Name: "slow", Service: slow})
	require.NoError(t, err)

	_, err = m.BlockCount(context.Background())
	require.True(t, errors.Is(err, errs.ErrServiceUnavailable))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMultiplexerCanceledContext(t *testing.T) {
	good := &fakeService{}
	m, err := NewMultiplexer(testConfig(), Provider{Name: "good", Service: good})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.BlockCount(ctx)
	require.True(t, errors.Is(err, errs.ErrServiceUnavailable))
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, good.calls())
}

func TestMultiplexerCircuitBreaker(t *testing.T) {
	bad := &fakeService{err: errBoom}
	good := &fakeService{}
	m, err := NewMultiplexer(testConfig(),
		Provider{Name: "bad", Service: bad},
		Provider{Name: "good", Service: good},
	)
	require.NoError(t, err)

	for i := 0; i < MaxNumOfFailingRequests; i++ {
		_, err := m.BlockCount(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, MaxNumOfFailingRequests, bad.calls())

	// breaker is open now, bad is not called anymore
	_, err = m.BlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, MaxNumOfFailingRequests, bad.calls())
	require.Equal(t, float64(1), testutil.ToFloat64(
		m.requests.WithLabelValues("bad", "blockcount", resultSkipped)))
}

func TestMultiplexerMetrics(t *testing.T) {
	m, err := NewMultiplexer(testConfig(), Provider{Name: "p", Service: &fakeService{}})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, m.RegisterMetrics(reg))

	_, err = m.GetTransactions(context.Background(), "addr", "", 10)
	require.NoError(t, err)
	require.Equal(t, 1, testutil.CollectAndCount(m, "go_bitcoin_chain_requests_total"))
}

func TestNewMultiplexerNoProviders(t *testing.T) {
	_, err := NewMultiplexer(testConfig())
	require.True(t, errors.Is(err, errs.ErrConfig))
	require.True(t, errors.Is(err, ErrNoProviders))
}
