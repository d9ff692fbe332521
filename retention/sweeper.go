package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Directory lists and deletes users. postgres.UserRepo implements it.
type Directory interface {
	ListRetentionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]account.User, error)
	Delete(ctx context.Context, userID string) error
}

// Revoker removes a user's refresh credentials. *leaseAuth.Engine
// implements it.
type Revoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

// Transactor runs fn in a transaction carried by ctx.
// postgres.Transactor implements it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	// Retention is the account age past which ACTIVE users are purged.
	Retention time.Duration
	// BatchSize caps the users handled by one SweepOnce. Zero selects 100.
	BatchSize int
}

// Report summarises one pass.
type Report struct {
	Cutoff     time.Time
	Candidates int
	Purged     int
	Failed     []string
}

type Sweeper struct {
	cfg     Config
	dir     Directory
	revoker Revoker
	tx      Transactor
	sink    leaseAuth.EventSink
	log     *zap.Logger

	mPurged prometheus.Counter
	mFailed prometheus.Counter
}

// New builds a Sweeper. sink and log may be nil. When reg is non-nil the
// sweeper's counters are registered with it.
func New(cfg Config, dir Directory, revoker Revoker, tx Transactor, sink leaseAuth.EventSink, log *zap.Logger, reg prometheus.Registerer) (*Sweeper, error) {
	if cfg.Retention <= 0 {
		return nil, errors.New("retention must be > 0")
	}
	if dir == nil || revoker == nil || tx == nil {
		return nil, errors.New("retention sweeper requires directory, revoker and transactor")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if sink == nil {
		sink = leaseAuth.NoOpSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Sweeper{
		cfg: cfg, dir: dir, revoker: revoker, tx: tx, sink: sink, log: log,
		mPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaseauth_retention_purged_total", Help: "Users purged by the retention sweep.",
		}),
		mFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaseauth_retention_failed_total", Help: "Retention purges rolled back on error.",
		}),
	}
	if reg != nil {
		if err := reg.Register(s.mPurged); err != nil {
			return nil, fmt.Errorf("register purged counter: %w", err)
		}
		if err := reg.Register(s.mFailed); err != nil {
			return nil, fmt.Errorf("register failed counter: %w", err)
		}
	}
	return s, nil
}

// SweepOnce purges up to BatchSize ACTIVE users created before
// now-Retention. A failed purge is rolled back and reported; the pass goes
// on with the next user. The returned error is non-nil only when listing
// candidates fails.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (Report, error) {
	cutoff := now.Add(-s.cfg.Retention)
	rep := Report{Cutoff: cutoff}

	ctx, span := otel.Tracer("leaseauth.retention").Start(ctx, "retention.sweep")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", s.cfg.BatchSize),
		attribute.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
	)

	users, err := s.dir.ListRetentionCandidates(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		return rep, fmt.Errorf("list retention candidates: %w", err)
	}
	rep.Candidates = len(users)

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := s.purge(ctx, u); err != nil {
			s.mFailed.Inc()
			rep.Failed = append(rep.Failed, u.ID)
			span.RecordError(err)
			s.log.Warn("retention purge failed", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		s.mPurged.Inc()
		rep.Purged++

		ev := leaseAuth.NewEvent(leaseAuth.EventUserPurged, now)
		ev.UserID = u.ID
		ev.Email = u.Email
		ev.Success = true
		ev.Metadata = map[string]string{
			"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
		}
		s.sink.Emit(ctx, ev)
	}

	span.SetAttributes(attribute.Int("purged", rep.Purged), attribute.Int("failed", len(rep.Failed)))
	s.log.Info("retention sweep done",
		zap.Int("candidates", rep.Candidates),
		zap.Int("purged", rep.Purged),
		zap.Int("failed", len(rep.Failed)),
	)
	return rep, nil
}

func (s *Sweeper) purge(ctx context.Context, u account.User) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.revoker.RevokeUser(ctx, u.ID); err != nil {
			return fmt.Errorf("revoke: %w", err)
		}
		if err := s.dir.Delete(ctx, u.ID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return nil
	})
}
