package application

import "bazaar/contexts/marketplace/listing-ledger/ports"

type noopMetrics struct{}

func (noopMetrics) ListingCreated() {}
func (noopMetrics) PurchaseCompleted(uint64, uint64) {}
func (noopMetrics) PurchaseRejected(string) {}
func (noopMetrics) OutboxPublished(int) {}

func ResolveMetrics(metrics ports.Metrics) ports.Metrics {
	if metrics != nil {
		return metrics
	}
	return noopMetrics{}
}
