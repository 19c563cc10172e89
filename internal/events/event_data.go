package events

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SnapshotWrittenData contains data for SnapshotWritten events
type SnapshotWrittenData struct {
	Date       string  `json:"date"`
	Accounts   int     `json:"accounts"`
	TotalValue float64 `json:"total_value"`
	Currency   string  `json:"currency"`
}

// EventType returns the event type for SnapshotWrittenData
func (d *SnapshotWrittenData) EventType() EventType {
	return SnapshotWritten
}

// BackfillCompletedData contains data for BackfillCompleted events
type BackfillCompletedData struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	TradingDays     int      `json:"trading_days"`
	SnapshotsAdded  int      `json:"snapshots_added"`
	SymbolsExcluded []string `json:"symbols_excluded,omitempty"`
}

// EventType returns the event type for BackfillCompletedData
func (d *BackfillCompletedData) EventType() EventType {
	return BackfillCompleted
}

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	Source string `json:"source,omitempty"`
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType {
	return PortfolioChanged
}

// PricesRefreshedData contains data for PricesRefreshed events
type PricesRefreshedData struct {
	Symbols int `json:"symbols"`
}

// EventType returns the event type for PricesRefreshedData
func (d *PricesRefreshedData) EventType() EventType {
	return PricesRefreshed
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
