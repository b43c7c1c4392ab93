package service

//go:generate mockgen -source=../ports/ports.go -destination=mocks/mocks.go -package=mocks CounterStore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"loyalgate/internal/audit"
	"loyalgate/internal/ratelimit/config"
	ratelimitmetrics "loyalgate/internal/ratelimit/metrics"
	"loyalgate/internal/ratelimit/models"
	"loyalgate/internal/ratelimit/ports"
	"loyalgate/internal/ratelimit/service/mocks"
	"loyalgate/internal/ratelimit/store/counter"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/circuit"
	"loyalgate/pkg/platform/sentinel"
	"loyalgate/pkg/requestcontext"
)

type LimiterSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockCounterStore
	cfg       *config.Config
	metrics   *ratelimitmetrics.Metrics
	now       time.Time
	ctx       context.Context
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockCounterStore(s.ctrl)
	s.cfg = config.DefaultConfig()
	s.cfg.Tiers[string(models.QuotaTierFree)][string(models.ClassRead)] = config.Limit{RequestsPerWindow: 5, Window: time.Minute}
	s.metrics = ratelimitmetrics.New(prometheus.NewRegistry())
	// 20 seconds into a minute window.
	s.now = time.Date(2026, 3, 1, 12, 0, 20, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *LimiterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *LimiterSuite) subject() models.Subject {
	return models.Subject{TenantID: "t-1", PrincipalID: "p-1"}
}

func (s *LimiterSuite) newLimiter(store ports.CounterStore, opts ...Option) *Limiter {
	opts = append([]Option{WithMetrics(s.metrics)}, opts...)
	l, err := New(store, s.cfg, opts...)
	s.Require().NoError(err)
	return l
}

func (s *LimiterSuite) TestNew() {
	s.Run("nil store", func() {
		_, err := New(nil, s.cfg)
		s.ErrorContains(err, "counter store is required")
	})
	s.Run("nil config", func() {
		_, err := New(s.mockStore, nil)
		s.ErrorContains(err, "rate limit config is required")
	})
	s.Run("invalid config", func() {
		cfg := config.DefaultConfig()
		cfg.StoreTimeout = 0
		_, err := New(s.mockStore, cfg)
		s.Error(err)
	})
}

func (s *LimiterSuite) TestAllowsUpToLimitThenDenies() {
	l := s.newLimiter(counter.NewInMemory())

	for i := 1; i <= 5; i++ {
		d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed, "request %d", i)
		s.Equal(5, d.Limit)
		s.Equal(5-i, d.Remaining)
		s.Equal(models.SourcePrimary, d.Source)
		s.Equal(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), d.ResetAt)
	}

	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(0, d.Remaining)
	s.Equal(40*time.Second, d.RetryAfter)
	s.Equal(40, d.RetryAfterSeconds())

	s.Equal(5.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("read", "allowed")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("read", "limited")))
}

func (s *LimiterSuite) TestNextWindowResetsBudget() {
	l := s.newLimiter(counter.NewInMemory())
	for range 6 {
		_, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
	}

	next := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	d, err := l.Check(next, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(4, d.Remaining)
}

func (s *LimiterSuite) TestBudgetsAreIndependent() {
	l := s.newLimiter(counter.NewInMemory())
	for range 5 {
		_, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
	}

	s.Run("other tenant", func() {
		d, err := l.Check(s.ctx, models.Subject{TenantID: "t-2", PrincipalID: "p-1"}, models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed)
	})
	s.Run("other principal", func() {
		d, err := l.Check(s.ctx, models.Subject{TenantID: "t-1", PrincipalID: "p-2"}, models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed)
	})
	s.Run("other class", func() {
		d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassWrite)
		s.Require().NoError(err)
		s.True(d.Allowed)
	})
}

func (s *LimiterSuite) TestConcurrentRequestsAdmitExactlyCapacity() {
	s.cfg.Tiers[string(models.QuotaTierFree)][string(models.ClassRead)] = config.Limit{RequestsPerWindow: 50, Window: time.Minute}
	l := s.newLimiter(counter.NewInMemory())

	var admitted, denied atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
			if err != nil {
				return
			}
			if d.Allowed {
				admitted.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(50), admitted.Load())
	s.Equal(int64(150), denied.Load())
}

func (s *LimiterSuite) TestAnonymousUsesPublicLimit() {
	s.cfg.PublicLimit = config.Limit{RequestsPerWindow: 2, Window: time.Minute}
	l := s.newLimiter(counter.NewInMemory())
	anon := models.Subject{Anonymous: true, ClientIP: "203.0.113.9"}

	for range 2 {
		d, err := l.Check(s.ctx, anon, "", models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed)
	}
	d, err := l.Check(s.ctx, anon, "", models.ClassRead)
	s.Require().NoError(err)
	s.False(d.Allowed)

	other := models.Subject{Anonymous: true, ClientIP: "203.0.113.10"}
	d, err = l.Check(s.ctx, other, "", models.ClassRead)
	s.Require().NoError(err)
	s.True(d.Allowed)
}

func (s *LimiterSuite) TestMissingPolicyDenies() {
	l := s.newLimiter(s.mockStore)

	d, err := l.Check(s.ctx, s.subject(), models.QuotaTier("platinum"), models.ClassRead)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimiterUnavailable))
	s.Require().NotNil(d)
	s.False(d.Allowed)
	s.Equal(models.SourceDenied, d.Source)
}

func (s *LimiterSuite) TestPassesKeyAndTTL() {
	l := s.newLimiter(s.mockStore)
	s.mockStore.EXPECT().
		IncrementAndGet(gomock.Any(), "rl:t-1:p-1:read:29539440", 41*time.Second).
		Return(int64(1), nil)

	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.True(d.Allowed)
}

func (s *LimiterSuite) TestStoreFailure_FailOpen() {
	s.cfg.FailPolicies[string(models.ClassRead)] = config.FailOpen
	l := s.newLimiter(s.mockStore)
	s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), sentinel.ErrUnavailable)

	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.True(d.Degraded)
	s.Equal(models.SourceFailOpen, d.Source)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StoreErrors))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FallbackChecks.WithLabelValues("open")))
}

func (s *LimiterSuite) TestStoreFailure_FailClosed() {
	l := s.newLimiter(s.mockStore)
	s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), sentinel.ErrUnavailable)

	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassSensitive)
	s.Nil(d)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimiterUnavailable))
}

func (s *LimiterSuite) TestStoreFailure_LocalFallback() {
	l := s.newLimiter(s.mockStore)
	s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), context.DeadlineExceeded).Times(4)

	for i := 1; i <= 4; i++ {
		d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed, "request %d", i)
		s.True(d.Degraded)
		s.Equal(models.SourceFallback, d.Source)
	}
}

func (s *LimiterSuite) TestLocalFallbackEnforcesBudget() {
	s.cfg.Breaker.FailureThreshold = 1
	s.cfg.Breaker.Cooldown = time.Hour
	l := s.newLimiter(s.mockStore)
	s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), sentinel.ErrUnavailable).Times(1)

	for i := 1; i <= 5; i++ {
		d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
		s.True(d.Allowed, "request %d", i)
	}
	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.True(d.Degraded)
	s.Equal(12*time.Second, d.RetryAfter)
}

func (s *LimiterSuite) TestBreakerSkipsStoreWhileOpen() {
	clock := s.now
	breaker := circuit.New("ratelimit",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Second),
		circuit.WithClock(func() time.Time { return clock }),
	)
	sink := audit.NewMemorySink()
	publisher := audit.NewPublisher(sink)
	l := s.newLimiter(s.mockStore, WithBreaker(breaker), WithAuditPublisher(publisher))

	gomock.InOrder(
		s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(int64(0), sentinel.ErrUnavailable).Times(2),
		s.mockStore.EXPECT().IncrementAndGet(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(int64(1), nil).Times(1),
	)

	for range 2 {
		_, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
		s.Require().NoError(err)
	}
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitOpen))

	// Open and inside the cooldown: decided locally, store untouched.
	d, err := l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.Equal(models.SourceFallback, d.Source)

	// Cooldown elapsed: one probe succeeds and closes the breaker.
	clock = clock.Add(2 * time.Second)
	d, err = l.Check(s.ctx, s.subject(), models.QuotaTierFree, models.ClassRead)
	s.Require().NoError(err)
	s.Equal(models.SourcePrimary, d.Source)
	s.False(breaker.IsOpen())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitOpen))

	s.Require().NoError(publisher.Flush(context.Background()))
	events := sink.ByType(audit.EventRateLimitDegraded)
	s.Require().Len(events, 1)
	s.Equal("circuit_opened", events[0].Reason)
}
