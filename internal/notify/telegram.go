package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"thermbridge/internal/coordinator"
	"thermbridge/internal/netatmo"
)

// Sender is the Telegram surface the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// healthState classifies the outcome of a refresh for alerting.
type healthState int

const (
	stateHealthy healthState = iota
	stateDegraded
	stateFailed
	stateAuthFailed
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateDegraded:
		return "degraded"
	case stateFailed:
		return "failed"
	case stateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// homeCondition tracks one home's alert state and when it left healthy.
type homeCondition struct {
	state healthState
	since time.Time
}

// Notifier sends Telegram alerts on refresh health transitions: nothing
// while a home stays healthy or stays broken, one message per state
// change, and a recovery message with the outage duration.
type Notifier struct {
	sender Sender
	chatID int64
	logger *slog.Logger

	mu    sync.Mutex
	homes map[string]homeCondition

	now func() time.Time
}

// New creates a notifier with its own Telegram connection.
func New(botToken string, chatID int64, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return NewNotifier(api, chatID, logger), nil
}

// NewNotifier creates a notifier on an existing sender.
func NewNotifier(sender Sender, chatID int64, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logger: logger.With("component", "notify"),
		homes:  make(map[string]homeCondition),
		now:    time.Now,
	}
}

// OnRefresh classifies the refresh outcome and alerts on transitions.
func (n *Notifier) OnRefresh(homeID string, snap *coordinator.Snapshot, err error) {
	state := classify(snap, err)

	n.mu.Lock()
	prev, known := n.homes[homeID]
	if !known {
		prev = homeCondition{state: stateHealthy}
	}
	if state == prev.state {
		n.mu.Unlock()
		return
	}

	cond := homeCondition{state: state, since: prev.since}
	if prev.state == stateHealthy {
		cond.since = n.now()
	}
	n.homes[homeID] = cond
	outage := n.now().Sub(cond.since)
	n.mu.Unlock()

	n.logger.Info("Home health changed",
		"home_id", homeID,
		"from", prev.state.String(),
		"to", state.String(),
	)

	n.send(transitionMessage(homeID, state, snap, err, outage))
}

// classify maps a refresh outcome to an alert state.
func classify(snap *coordinator.Snapshot, err error) healthState {
	if err != nil {
		if errors.Is(err, netatmo.ErrAuth) {
			return stateAuthFailed
		}
		return stateFailed
	}
	if snap != nil && snap.Stale {
		return stateDegraded
	}
	return stateHealthy
}

func transitionMessage(homeID string, state healthState, snap *coordinator.Snapshot, err error, outage time.Duration) string {
	switch state {
	case stateDegraded:
		reason := ""
		if snap != nil {
			reason = snap.LastError
		}
		return fmt.Sprintf("⚠️ *Thermostat data is stale*\nHome: `%s`\nServing the last good state.\n%s", homeID, reason)
	case stateFailed:
		return fmt.Sprintf("🔴 *Lost contact with the thermostat cloud*\nHome: `%s`\n%s", homeID, err)
	case stateAuthFailed:
		return fmt.Sprintf("🔐 *Authentication failed*\nHome: `%s`\nThe refresh token was rejected. Re-authorize the app and update the configuration.", homeID)
	default:
		return fmt.Sprintf("✅ *Thermostat connection recovered*\nHome: `%s`\nOutage lasted %s.", homeID, outage.Round(time.Second))
	}
}

// send delivers a message to the configured chat. Failures are logged,
// never propagated: alerting must not disturb polling.
func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error("Failed to send alert",
			"chat_id", n.chatID,
			"error", err,
		)
	}
}
