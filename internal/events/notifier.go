package events

// Notifier adapts the event manager to the domain.ChangeNotifier interface
// used by the portfolio, snapshot and historical services.
type Notifier struct {
	manager *Manager
	module  string
}

// NewNotifier creates a change notifier that emits events for the given module
func NewNotifier(manager *Manager, module string) *Notifier {
	return &Notifier{manager: manager, module: module}
}

// NotifyDataChanged emits a PortfolioChanged event
func (n *Notifier) NotifyDataChanged() {
	n.manager.EmitTyped(PortfolioChanged, n.module, &PortfolioChangedData{Source: n.module})
}

// RefreshWidgets emits a WidgetRefreshRequested event
func (n *Notifier) RefreshWidgets() {
	n.manager.Emit(WidgetRefreshRequested, n.module, nil)
}
