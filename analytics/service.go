package analytics

import (
	"context"
	"fmt"
	"time"

	"learnsync/engine"
)

// Service provides a complete analytics solution over the broadcast stream
type Service struct {
	metrics    *Metrics
	aggregator *AggregationEngine
	publisher  *StreamPublisher
	dashboard  *DashboardManager
	exporter   *ExportManager
}

// NewService creates a fully configured analytics service
func NewService() *Service {
	// Create core metrics
	metrics := NewMetrics()

	// Create aggregation engine (aggregate every hour)
	aggregator := NewAggregationEngine(metrics, 1*time.Hour)

	// Create streaming publisher
	publisher := NewStreamPublisher(metrics)

	// Create dashboard manager
	dashboard := NewDashboardManager(publisher, metrics, 100)

	// Create exporters (console for demo, can add HTTP exporters)
	exporter := NewExportManager(NewConsoleExporter("[ANALYTICS]"))

	return &Service{
		metrics:    metrics,
		aggregator: aggregator,
		publisher:  publisher,
		dashboard:  dashboard,
		exporter:   exporter,
	}
}

// Bind subscribes the service to every delivery on the bus and returns the
// unsubscribe function.
func (s *Service) Bind(bus *engine.EventBus) func() {
	return bus.SubscribeAll(func(_ context.Context, d engine.Delivery) {
		s.publisher.OnDelivery(d)
	})
}

// Hook returns the delivery hook, for callers wiring the service by hand.
func (s *Service) Hook() Hook {
	return s.publisher
}

// Start begins background analytics processing
func (s *Service) Start(ctx context.Context) {
	// Start aggregation in background
	go s.aggregator.Start(ctx)

	// Start periodic export in background
	go s.startPeriodicExport(ctx)
}

// startPeriodicExport periodically exports aggregated data
func (s *Service) startPeriodicExport(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour) // Export every 6 hours
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Export daily aggregations
			dailyData := s.aggregator.GetAllAggregatedData(PeriodDaily)
			if err := s.exporter.ExportData(ctx, dailyData); err != nil {
				fmt.Printf("Export error: %v\n", err)
			}
		}
	}
}

// GetRealtimeStats returns current real-time statistics
func (s *Service) GetRealtimeStats() map[string]interface{} {
	return s.publisher.GetRealtimeStats()
}

// GetDashboardData returns data for live dashboards
func (s *Service) GetDashboardData() *DashboardData {
	return s.dashboard.GetDashboardData()
}

// ForceAggregation triggers immediate aggregation (useful for testing)
func (s *Service) ForceAggregation() error {
	return s.aggregator.AggregateNow()
}

// SubscribeToRealtime adds a subscriber for real-time events
func (s *Service) SubscribeToRealtime(id string, subscriber StreamSubscriber) {
	s.publisher.Subscribe(id, subscriber)
}

// UnsubscribeFromRealtime removes a real-time subscriber
func (s *Service) UnsubscribeFromRealtime(id string) {
	s.publisher.Unsubscribe(id)
}

// ServiceConfig holds configuration for analytics services
type ServiceConfig struct {
	AggregationInterval time.Duration    `json:"aggregation_interval"`
	MaxRecentEvents     int              `json:"max_recent_events"`
	ExportInterval      time.Duration    `json:"export_interval"`
	Exporters           []ExporterConfig `json:"exporters"`
}

// ExporterConfig holds configuration for individual exporters
type ExporterConfig struct {
	Type      string `json:"type"` // "http", "console"
	Endpoint  string `json:"endpoint,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// NewServiceWithConfig creates an analytics service with custom configuration
func NewServiceWithConfig(config *ServiceConfig) *Service {
	metrics := NewMetrics()
	aggregator := NewAggregationEngine(metrics, config.AggregationInterval)
	publisher := NewStreamPublisher(metrics)
	dashboard := NewDashboardManager(publisher, metrics, config.MaxRecentEvents)

	// Create exporters from config
	exporters := []Exporter{NewConsoleExporter("[ANALYTICS]")}
	for _, expConfig := range config.Exporters {
		if expConfig.Type == "http" && expConfig.Endpoint != "" {
			exporters = append(exporters, NewHTTPExporter(expConfig.Endpoint, expConfig.APIKey, expConfig.BatchSize))
		}
	}

	return &Service{
		metrics:    metrics,
		aggregator: aggregator,
		publisher:  publisher,
		dashboard:  dashboard,
		exporter:   NewExportManager(exporters...),
	}
}
