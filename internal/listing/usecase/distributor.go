package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/marketplace"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultAdapterTimeout = 30 * time.Second

	reasonListingUnavailable = "listing_unavailable"
)

// AdapterLookup resolves a marketplace name to its adapter.
type AdapterLookup interface {
	Lookup(name string) (marketplace.Adapter, bool)
}

// PostingMetrics is implemented by metrics.MetricsManager.
type PostingMetrics interface {
	PostingStarted()
	PostingFinished(marketplace, status string, elapsed time.Duration)
	AdapterCallAbandoned(marketplace string)
	AbandonedCallReturned(marketplace string)
}

type DistributorConfig struct {
	AdapterTimeout time.Duration
	// MaxConcurrentPosts bounds adapter calls across all listings. Zero means
	// unbounded. Waiting for a slot counts against AdapterTimeout.
	MaxConcurrentPosts int
}

// Distributor fans a listing out to its selected marketplaces. Every task runs
// on its own goroutine and records exactly one terminal status write.
type Distributor struct {
	repo      domain.ListingRepository
	adapters  AdapterLookup
	publisher domain.EventPublisher
	notifier  domain.Notifier
	metrics   PostingMetrics
	logger    *logger.Logger
	tracer    trace.Tracer

	timeout   time.Duration
	sem       chan struct{}
	wg        sync.WaitGroup
	abandoned atomic.Int64
}

// NewDistributor wires the orchestrator. publisher, notifier and metrics may be nil.
func NewDistributor(
	repo domain.ListingRepository,
	adapters AdapterLookup,
	publisher domain.EventPublisher,
	notifier domain.Notifier,
	metrics PostingMetrics,
	cfg DistributorConfig,
	log *logger.Logger,
) *Distributor {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	d := &Distributor{
		repo:      repo,
		adapters:  adapters,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		logger:    log.Named("distributor"),
		tracer:    otel.Tracer("flashlist-service/distributor"),
		timeout:   cfg.AdapterTimeout,
	}
	if cfg.MaxConcurrentPosts > 0 {
		d.sem = make(chan struct{}, cfg.MaxConcurrentPosts)
	}
	return d
}

// Distribute resets the named entries to pending and starts one posting task
// per marketplace. It returns once every task is started, not completed.
func (d *Distributor) Distribute(ctx context.Context, listingID string, marketplaces []string) error {
	names := domain.Dedupe(marketplaces)
	if len(names) == 0 {
		return nil
	}
	attempts, err := d.repo.MarkPending(ctx, listingID, names)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	d.dispatch(ctx, listingID, names, attempts)
	return nil
}

// Retry re-dispatches a single failed entry. Other entries are not touched.
func (d *Distributor) Retry(ctx context.Context, listingID, name string) error {
	l, err := d.repo.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if !l.HasMarketplace(name) {
		return domain.ErrInvalidMarketplace
	}
	if st, ok := l.Status[name]; !ok || st.State != domain.StatusFailed {
		return domain.ErrNotRetryable
	}

	attempts, err := d.repo.MarkPending(ctx, listingID, []string{name})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// someone else retried first
			return domain.ErrNotRetryable
		}
		return fmt.Errorf("mark pending: %w", err)
	}
	d.dispatch(ctx, listingID, []string{name}, attempts)
	return nil
}

// AbandonedCalls reports adapter calls that outlived their timeout and have
// not returned yet.
func (d *Distributor) AbandonedCalls() int64 {
	return d.abandoned.Load()
}

// Shutdown waits for in-flight tasks until ctx is done.
func (d *Distributor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Distributor) dispatch(ctx context.Context, listingID string, names []string, attempts map[string]int64) {
	// tasks outlive the request that started them
	taskCtx := context.WithoutCancel(ctx)
	remaining := int32(len(names))

	d.logger.Info("Dispatching listing to marketplaces",
		zap.String("listing_id", listingID), zap.Strings("marketplaces", names))

	for _, name := range names {
		d.wg.Add(1)
		go func(name string, attempt int64) {
			defer d.wg.Done()
			d.runTask(taskCtx, listingID, name, attempt)
			if atomic.AddInt32(&remaining, -1) == 0 {
				d.checkConverged(taskCtx, listingID)
			}
		}(name, attempts[name])
	}
}

func (d *Distributor) runTask(ctx context.Context, listingID, name string, attempt int64) {
	ctx, span := d.tracer.Start(ctx, "marketplace.post", trace.WithAttributes(
		attribute.String("listing.id", listingID),
		attribute.String("marketplace.name", name),
		attribute.Int64("marketplace.attempt", attempt),
	))
	defer span.End()

	upd := d.post(ctx, listingID, name)
	upd.Attempt = attempt
	span.SetAttributes(attribute.String("marketplace.status", string(upd.Status)))
	if upd.Status == domain.StatusFailed {
		span.SetStatus(codes.Error, upd.Reason)
	}

	log := d.logger.With(
		zap.String("listing_id", listingID),
		zap.String("marketplace", name),
		zap.Int64("attempt", attempt),
	)

	err := d.repo.UpdateStatus(ctx, listingID, name, upd)
	switch {
	case err == nil:
		log.Info("Marketplace posting finished",
			zap.String("status", string(upd.Status)), zap.String("reason", upd.Reason))
		publish(ctx, d.publisher, d.logger, SubjectDistributionStatus, DistributionStatusEvent{
			ListingID:   listingID,
			Marketplace: name,
			Status:      upd.Status,
			Attempt:     attempt,
			Reason:      upd.Reason,
			ExternalID:  upd.ExternalID,
			OccurredAt:  time.Now().UTC(),
		})
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrInvalidMarketplace),
		errors.Is(err, domain.ErrStaleUpdate):
		log.Info("Dropping marketplace outcome", zap.String("status", string(upd.Status)), zap.Error(err))
	default:
		log.Error("Failed to record marketplace outcome", zap.Error(err))
	}
}

// post resolves and calls the adapter and always returns a terminal update.
func (d *Distributor) post(ctx context.Context, listingID, name string) domain.StatusUpdate {
	adapter, ok := d.adapters.Lookup(name)
	if !ok {
		return domain.StatusUpdate{Status: domain.StatusFailed, Reason: domain.ReasonUnknownMarketplace}
	}

	listing, err := d.repo.FindByID(ctx, listingID)
	if err != nil {
		return domain.StatusUpdate{Status: domain.StatusFailed, Reason: reasonListingUnavailable}
	}

	if d.metrics != nil {
		d.metrics.PostingStarted()
	}
	start := time.Now()
	upd := d.callAdapter(ctx, adapter, listing)
	if d.metrics != nil {
		d.metrics.PostingFinished(name, string(upd.Status), time.Since(start))
	}
	return upd
}

type postResult struct {
	receipt *marketplace.Receipt
	err     error
	panic   interface{}
}

// Call states shared between callAdapter and the adapter goroutine.
const (
	callRunning int32 = iota
	callReturned
	callAbandoned
)

// callAdapter bounds the adapter call with the configured timeout. The call
// runs on its own goroutine so an adapter that ignores ctx cannot hold the
// task. Such a call is counted as abandoned until it returns, and it keeps its
// concurrency slot until then.
func (d *Distributor) callAdapter(ctx context.Context, adapter marketplace.Adapter, listing *domain.Listing) domain.StatusUpdate {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	timedOut := domain.StatusUpdate{Status: domain.StatusFailed, Reason: domain.ReasonTimeout}

	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			d.logger.Warn("No free posting slot before timeout", zap.String("marketplace", adapter.Name()))
			return timedOut
		}
	}

	var state atomic.Int32
	results := make(chan postResult, 1)
	go func() {
		defer func() {
			if d.sem != nil {
				<-d.sem
			}
			if !state.CompareAndSwap(callRunning, callReturned) {
				d.abandoned.Add(-1)
				if d.metrics != nil {
					d.metrics.AbandonedCallReturned(adapter.Name())
				}
				d.logger.Info("Abandoned marketplace call returned", zap.String("marketplace", adapter.Name()))
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				results <- postResult{panic: r}
			}
		}()
		receipt, err := adapter.Post(ctx, listing)
		results <- postResult{receipt: receipt, err: err}
	}()

	select {
	case res := <-results:
		switch {
		case res.panic != nil:
			d.logger.Error("Marketplace adapter panicked",
				zap.String("marketplace", adapter.Name()), zap.Any("panic", res.panic))
			return domain.StatusUpdate{Status: domain.StatusFailed, Reason: domain.ReasonAdapterPanic}
		case res.err != nil:
			d.logger.Warn("Marketplace adapter failed",
				zap.String("marketplace", adapter.Name()), zap.Error(res.err))
			return domain.StatusUpdate{Status: domain.StatusFailed, Reason: marketplace.FailureReason(res.err)}
		}
		upd := domain.StatusUpdate{Status: domain.StatusPosted}
		if res.receipt != nil {
			upd.ExternalID = res.receipt.ExternalID
		}
		return upd
	case <-ctx.Done():
		if state.CompareAndSwap(callRunning, callAbandoned) {
			n := d.abandoned.Add(1)
			if d.metrics != nil {
				d.metrics.AdapterCallAbandoned(adapter.Name())
			}
			d.logger.Warn("Marketplace adapter ignored its deadline, call abandoned",
				zap.String("marketplace", adapter.Name()), zap.Int64("abandoned_calls", n))
		}
		return timedOut
	}
}

func (d *Distributor) checkConverged(ctx context.Context, listingID string) {
	l, err := d.repo.FindByID(ctx, listingID)
	if err != nil {
		if !errors.Is(err, domain.ErrListingNotFound) {
			d.logger.Warn("Failed to load listing after distribution", zap.String("listing_id", listingID), zap.Error(err))
		}
		return
	}
	if domain.LifecycleOf(l) != domain.LifecycleDistributed {
		return
	}

	d.logger.Info("Listing distribution converged",
		zap.String("listing_id", listingID), zap.Any("marketplace_status", l.StatusMap()))
	publish(ctx, d.publisher, d.logger, SubjectDistributionConverged, DistributionConvergedEvent{
		ListingID:  l.ID,
		UserID:     l.UserID,
		Status:     l.StatusMap(),
		OccurredAt: time.Now().UTC(),
	})
	if d.notifier != nil {
		if err := d.notifier.DistributionConverged(ctx, l); err != nil {
			d.logger.Warn("Failed to notify owner", zap.String("listing_id", listingID), zap.Error(err))
		}
	}
}
