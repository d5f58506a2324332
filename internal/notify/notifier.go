package notify

import (
	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/models"
	"arbcontrol/pkg/config"
)

const (
	TradeEventsQueue   = "trade_events"
	DepositEventsQueue = "deposit_events"
)

// Notifier delivers best-effort external notifications. Publishing is
// explicitly non-blocking and has its own failure log; it can never affect
// the primary response path or the retry semantics of the action that
// triggered it.
type Notifier struct {
	publisher   *config.Publisher
	broadcaster *Broadcaster
}

func NewNotifier(publisher *config.Publisher, broadcaster *Broadcaster) *Notifier {
	return &Notifier{publisher: publisher, broadcaster: broadcaster}
}

func (n *Notifier) publish(queue string, message interface{}) {
	if n == nil || n.publisher == nil {
		return
	}
	go func() {
		if err := n.publisher.Publish(queue, message); err != nil {
			log.Errorf("notification publish to %s failed: %v", queue, err)
		}
	}()
}

// TradeUpdated pushes a trade lifecycle transition to the queue and the
// websocket clients.
func (n *Notifier) TradeUpdated(trade *models.Trade) {
	if n == nil {
		return
	}
	n.publish(TradeEventsQueue, trade)
	if n.broadcaster != nil {
		n.broadcaster.Broadcast("trade", trade)
	}
}

// DepositRecorded pushes a verified deposit event.
func (n *Notifier) DepositRecorded(deposit *models.Deposit) {
	if n == nil {
		return
	}
	n.publish(DepositEventsQueue, deposit)
	if n.broadcaster != nil {
		n.broadcaster.Broadcast("deposit", deposit)
	}
}
