// Package notification delivers trade alerts to external channels
// (Telegram, generic webhooks) and to the log.
package notification

import (
	"context"
	"fmt"
	"log"

	"trading-botv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s %s: %s", alert.Level, alert.Symbol, alert.Title, alert.Message)
	return nil
}

// MultiNotifier fans an alert out to several backends. Delivery failures are
// logged per backend; one dead channel never blocks the others.
type MultiNotifier struct {
	backends []Notifier
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(backends ...Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	for _, n := range m.backends {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend error: %v", err)
		}
	}
	return nil
}

// SignalAlert builds the alert for an executed trading signal.
func SignalAlert(rec model.SignalRecord) Alert {
	return Alert{
		Level:  AlertInfo,
		Symbol: rec.Symbol,
		Title:  fmt.Sprintf("%s signal: %s", rec.Symbol, rec.SignalType),
		Message: fmt.Sprintf("confidence %.2f at price %.6f (model %s)",
			rec.Confidence, rec.Price, rec.ModelVersion),
	}
}

// PositionOpenedAlert builds the alert for a newly opened position.
func PositionOpenedAlert(p *model.Position) Alert {
	return Alert{
		Level:  AlertInfo,
		Symbol: p.Symbol,
		Title:  fmt.Sprintf("Opened %s %s", p.Side, p.Symbol),
		Message: fmt.Sprintf("qty %.6f @ %.6f, SL %.6f, TP %.6f / %.6f / %.6f",
			p.Quantity, p.EntryPrice, p.InitialSL, p.TP1Price, p.TP2Price, p.TP3Price),
	}
}

// PositionClosedAlert builds the alert for a closed position. Stop-loss exits
// escalate to warning level.
func PositionClosedAlert(p *model.Position) Alert {
	level := AlertInfo
	if p.CloseReason == "SL" {
		level = AlertWarning
	}
	return Alert{
		Level:  level,
		Symbol: p.Symbol,
		Title:  fmt.Sprintf("Closed %s %s (%s)", p.Side, p.Symbol, p.CloseReason),
		Message: fmt.Sprintf("exit %.6f, pnl %.4f", p.CurrentPrice, p.PnL),
	}
}
