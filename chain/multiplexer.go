package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/vulpemventures/go-bitcoin/config"
	"github.com/vulpemventures/go-bitcoin/errs"
	"go.uber.org/ratelimit"
)

var (
	// MaxNumOfFailingRequests is the number of requests a provider must
	// have served before its circuit breaker can open.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the failure ratio above which the breaker opens.
	FailingRatio = 0.6
	// BreakerTimeout is how long an open breaker waits before letting a
	// trial request through.
	BreakerTimeout = 60 * time.Second

	// ErrNoProviders is returned when building a multiplexer without
	// providers.
	ErrNoProviders = errors.New("at least one provider is required")
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultFinal   = "final"
	resultSkipped = "skipped"
)

// Provider is a named Service. Providers with lower Priority are queried
// first.
type Provider struct {
	Name     string
	Service  Service
	Priority int
}

type provider struct {
	Provider
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// Multiplexer is a Service querying a list of providers in priority order
// until one answers. Each provider sits behind its own circuit breaker and
// rate limiter. A call gives up with errs.ErrServiceUnavailable once every
// provider failed or MaxErrors failures were seen.
type Multiplexer struct {
	providers []*provider
	timeout   time.Duration
	maxErrors int
	log       *log.Entry
	requests  *prometheus.CounterVec
}

// NewMultiplexer returns a Multiplexer over the given providers, using the
// timeout, error threshold and rate limit of cfg.
func NewMultiplexer(cfg *config.Context, providers ...Provider) (*Multiplexer, error) {
	if len(providers) == 0 {
		return nil, errs.New(errs.ErrConfig, "chain.NewMultiplexer", ErrNoProviders)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.NewEntry(log.StandardLogger())
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	logger = logger.WithField("component", "chain")

	sorted := append([]Provider{}, providers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	list := make([]*provider, 0, len(sorted))
	for _, p := range sorted {
		limiter := ratelimit.NewUnlimited()
		if cfg.ServiceRateLimit > 0 {
			limiter = ratelimit.New(cfg.ServiceRateLimit)
		}
		list = append(list, &provider{
			Provider: p,
			cb:       newCircuitBreaker(p.Name, logger),
			limiter:  limiter,
		})
	}

	maxErrors := cfg.ServiceMaxErrors
	if maxErrors <= 0 {
		maxErrors = len(list)
	}
	timeout := cfg.ServiceTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Multiplexer{
		providers: list,
		timeout:   timeout,
		maxErrors: maxErrors,
		log:       logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "go_bitcoin_chain_requests_total",
			Help: "Chain provider requests by provider, method and result.",
		}, []string{"provider", "method", "result"}),
	}, nil
}

// Describe implements prometheus.Collector.
func (m *Multiplexer) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Multiplexer) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
}

// RegisterMetrics registers the request counters of the multiplexer.
func (m *Multiplexer) RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(m)
}

func (m *Multiplexer) GetUTXOs(
	ctx context.Context, address, afterTxID string, limit int,
) ([]UTXO, error) {
	return call(ctx, m, "getutxos", func(ctx context.Context, s Service) ([]UTXO, error) {
		return s.GetUTXOs(ctx, address, afterTxID, limit)
	})
}

func (m *Multiplexer) GetTransaction(ctx context.Context, txid string) (*TxInfo, error) {
	return call(ctx, m, "gettransaction", func(ctx context.Context, s Service) (*TxInfo, error) {
		return s.GetTransaction(ctx, txid)
	})
}

func (m *Multiplexer) GetTransactions(
	ctx context.Context, address, afterTxID string, limit int,
) ([]TxInfo, error) {
	return call(ctx, m, "gettransactions", func(ctx context.Context, s Service) ([]TxInfo, error) {
		return s.GetTransactions(ctx, address, afterTxID, limit)
	})
}

func (m *Multiplexer) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return call(ctx, m, "sendrawtransaction", func(ctx context.Context, s Service) (string, error) {
		return s.SendRawTransaction(ctx, raw)
	})
}

func (m *Multiplexer) EstimateFee(ctx context.Context, blocks int) (uint64, error) {
	return call(ctx, m, "estimatefee", func(ctx context.Context, s Service) (uint64, error) {
		return s.EstimateFee(ctx, blocks)
	})
}

func (m *Multiplexer) BlockCount(ctx context.Context) (uint32, error) {
	return call(ctx, m, "blockcount", func(ctx context.Context, s Service) (uint32, error) {
		return s.BlockCount(ctx)
	})
}

func call[T any](
	ctx context.Context,
	m *Multiplexer,
	method string,
	fn func(context.Context, Service) (T, error),
) (T, error) {
	op := "chain." + method

	var (
		zero     T
		failures []error
		errCount int
	)
	for _, p := range m.providers {
		if errCount >= m.maxErrors {
			break
		}
		if err := ctx.Err(); err != nil {
			return zero, errs.New(errs.ErrServiceUnavailable, op, err)
		}

		var (
			result T
			final  error
		)
		p.limiter.Take()
		// Final answers must not count as breaker failures.
		_, err := p.cb.Execute(func() (interface{}, error) {
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			res, err := fn(cctx, p.Service)
			if err != nil {
				if IsFinal(err) {
					final = err
					return nil, nil
				}
				return nil, err
			}
			result = res
			return nil, nil
		})

		switch {
		case err == nil && final != nil:
			m.requests.WithLabelValues(p.Name, method, resultFinal).Inc()
			return zero, final
		case err == nil:
			m.requests.WithLabelValues(p.Name, method, resultOK).Inc()
			return result, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			m.requests.WithLabelValues(p.Name, method, resultSkipped).Inc()
			failures = append(failures, fmt.Errorf("%s: %w", p.Name, err))
		default:
			m.requests.WithLabelValues(p.Name, method, resultError).Inc()
			m.log.WithError(err).WithField("provider", p.Name).Warnf("%s failed", method)
			failures = append(failures, fmt.Errorf("%s: %w", p.Name, err))
			errCount++
		}
	}

	if len(failures) == 0 {
		failures = append(failures, ErrNoProviders)
	}
	return zero, errs.New(errs.ErrServiceUnavailable, op, errors.Join(failures...))
}

func newCircuitBreaker(name string, logger *log.Entry) *gobreaker.CircuitBreaker {
	logger = logger.WithField("provider", name)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) >= MaxNumOfFailingRequests && failureRatio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("provider seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info("checking provider status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info("provider seems ok, restart allowing requests")
			}
		},
	})
}
