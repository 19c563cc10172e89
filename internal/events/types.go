// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	PortfolioChanged       EventType = "PORTFOLIO_CHANGED"
	SnapshotWritten        EventType = "SNAPSHOT_WRITTEN"
	BackfillCompleted      EventType = "BACKFILL_COMPLETED"
	PricesRefreshed        EventType = "PRICES_REFRESHED"
	WidgetRefreshRequested EventType = "WIDGET_REFRESH_REQUESTED"
	DataReset              EventType = "DATA_RESET"
	BackupCompleted        EventType = "BACKUP_COMPLETED"
	ErrorOccurred          EventType = "ERROR_OCCURRED"
)
