package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the listing ledger metrics port on Prometheus
// collectors.
type Recorder struct {
	listingsCreated    prometheus.Counter
	purchasesCompleted prometheus.Counter
	purchasesRejected  *prometheus.CounterVec
	sellerPaid         prometheus.Counter
	refundIssued       prometheus.Counter
	outboxPublished    prometheus.Counter
}

// New registers collectors on reg. Pass prometheus.DefaultRegisterer for the
// process-wide /metrics endpoint and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		listingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_ledger_listings_created_total",
			Help: "Total number of listings created",
		}),
		purchasesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_ledger_purchases_completed_total",
			Help: "Total number of purchases committed",
		}),
		purchasesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listing_ledger_purchases_rejected_total",
				Help: "Total number of purchases rejected by reason",
			},
			[]string{"reason"},
		),
		sellerPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_ledger_seller_paid_units_total",
			Help: "Sum of listing prices paid to sellers, in smallest currency units",
		}),
		refundIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_ledger_refund_issued_units_total",
			Help: "Sum of overpayment refunds issued to buyers, in smallest currency units",
		}),
		outboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_ledger_outbox_published_total",
			Help: "Total number of outbox events handed to the broker",
		}),
	}
}

func (r *Recorder) ListingCreated() {
	r.listingsCreated.Inc()
}

func (r *Recorder) PurchaseCompleted(sellerPaid uint64, refundIssued uint64) {
	r.purchasesCompleted.Inc()
	r.sellerPaid.Add(float64(sellerPaid))
	if refundIssued > 0 {
		r.refundIssued.Add(float64(refundIssued))
	}
}

func (r *Recorder) PurchaseRejected(reason string) {
	r.purchasesRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) OutboxPublished(count int) {
	if count > 0 {
		r.outboxPublished.Add(float64(count))
	}
}
