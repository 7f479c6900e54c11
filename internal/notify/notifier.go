// Package notify delivers proximity notices to residents.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// Notifier sends one proximity notice to one resident. Implementations must
// be safe for concurrent use by dispatcher workers.
type Notifier interface {
	NotifyProximity(ctx context.Context, truck models.Truck, resident models.Resident) error
}

// Subject returns the notice subject line for a truck.
func Subject(truck models.Truck) string {
	return fmt.Sprintf("Refuse Truck Approaching (%s)", truck.Name)
}

// Body returns the human-readable notice for a resident.
func Body(truck models.Truck, resident models.Resident) string {
	return fmt.Sprintf(
		"Hello %s,\n\n"+
			"The refuse truck (%s) is less than 1 km away from your house at %s.\n"+
			"Please be ready for collection.\n\n"+
			"Thank you,\nZimRefuse Team",
		resident.Email, truck.Name, resident.Suburb)
}

// LogNotifier logs notices instead of sending them. Used when no mail
// transport is configured and as the test fallback.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "notify"))}
}

// NotifyProximity logs the notice and always succeeds.
func (n *LogNotifier) NotifyProximity(_ context.Context, truck models.Truck, resident models.Resident) error {
	n.logger.Info("Proximity notice (mail transport disabled)",
		zap.String("resident", resident.Email),
		zap.String("truck", truck.Name),
		zap.String("suburb", resident.Suburb))
	return nil
}
