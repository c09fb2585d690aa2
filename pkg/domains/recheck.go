package domains

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/origolabs/origo/pkg/async"
	"github.com/origolabs/origo/pkg/observability"
	"github.com/origolabs/origo/pkg/tenants"
)

// recheckWorkers bounds concurrent DNS probes per sweep.
const recheckWorkers = 4

// Rechecker retries pending domain verifications in the background, so a
// tenant whose DNS record propagated after their last manual attempt
// becomes verified without clicking anything.
type Rechecker struct {
	verifier *Verifier
	store    Store
	log      *logrus.Logger
	metrics  *observability.Metrics
	cron     *cron.Cron
	timeout  time.Duration
}

// NewRechecker creates a background rechecker. metrics may be nil.
func NewRechecker(verifier *Verifier, store Store, log *logrus.Logger, metrics *observability.Metrics) *Rechecker {
	if log == nil {
		log = logrus.New()
	}
	return &Rechecker{
		verifier: verifier,
		store:    store,
		log:      log,
		metrics:  metrics,
		cron:     cron.New(),
		timeout:  2 * time.Minute,
	}
}

// Start schedules the recheck sweep. schedule is a cron expression, e.g.
// "@every 10m".
func (r *Rechecker) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Rechecker) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Rechecker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pending, err := r.store.ListPendingDomainTenants(ctx)
	if err != nil {
		r.log.WithError(err).Error("failed to list pending domains")
		return
	}
	if r.metrics != nil {
		r.metrics.PendingDomainsTotal.Set(float64(len(pending)))
	}
	if len(pending) == 0 {
		return
	}

	r.log.WithField("count", len(pending)).Debug("rechecking pending domains")
	errs := async.Batch(ctx, pending, recheckWorkers, "domain-recheck", 30*time.Second,
		func(ctx context.Context, tenant tenants.Tenant) error {
			result, err := r.verifier.Verify(ctx, tenant.ID)
			if err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"tenant_id": tenant.ID,
					"domain":    tenant.Domain,
				}).Warn("domain recheck failed")
				return err
			}
			if result.Verified {
				r.log.WithFields(logrus.Fields{
					"tenant_id": tenant.ID,
					"domain":    tenant.Domain,
				}).Info("domain verified by background recheck")
			}
			return nil
		})
	if len(errs) > 0 {
		r.log.WithField("failed", len(errs)).Debug("recheck sweep finished with errors")
	}
}
