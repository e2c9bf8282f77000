package femto

/*
The message bus exists to give integrators event-based access to what the
cache discovers: transactions found for watched scripts, blocks processed,
system conditions. A singleton bus is passed around internally with a Send
method; MessageSubscribers (log files, callbacks, ...) register with the bus
along with the EventTypes they want.
*/

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// MessageSubscribers are things that subscribe to the bus and handle
// messages, ie: log-files, http callbacks etc.
type MessageSubscriber interface {
	GetChan() chan Message
}

// Created by the bus, wraps message sent with Send
type Message struct {
	EventType EventType
	Message   []byte
	ID        string // optional
}

type Subscription struct {
	dest  MessageSubscriber
	types []EventType
}

func NewMessageBus() MessageBus {
	return MessageBus{
		receivers: make(map[*Subscription]bool),
		inbound:   make(chan Message, 1),
	}
}

type MessageBus struct {
	// Registered MessageSubscribers.
	receivers map[*Subscription]bool

	// Messages from Send(), destined for MessageSubscribers
	inbound chan Message
}

// Send a message to the bus with a specific EventType. msg can be anything
// JSON serialisable; it is turned into a Message and delivered to any
// interested MessageSubscribers.
func (b MessageBus) Send(t EventType, msg interface{}, msgID ...string) error {
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if len(msgID) == 0 {
		b.inbound <- Message{t, j, generateID()}
	} else {
		b.inbound <- Message{t, j, msgID[0]}
	}
	return nil
}

func (b MessageBus) Register(m MessageSubscriber, types ...EventType) {
	sub := Subscription{m, types}
	b.receivers[&sub] = true
}

func (b MessageBus) Unregister(sub *Subscription) {
	delete(b.receivers, sub)
	close(sub.dest.GetChan())
}

func (b MessageBus) wants(sub *Subscription, t EventType) bool {
	for _, want := range sub.types {
		if want.Type() == "ALL" || want.Type() == t.Type() {
			return true
		}
	}
	return false
}

// Implements conductor Service
func (b MessageBus) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		stopBus := make(chan bool)
		go func() {
			for {
				select {
				case <-stopBus:
					return
				case message := <-b.inbound:
					for sub := range b.receivers {
						if !b.wants(sub, message.EventType) {
							continue
						}
						// non-blocking send; a receiver that cannot keep
						// up loses its subscription rather than stalling
						// the bus.
						select {
						case sub.dest.GetChan() <- message:
						default:
							b.Send(SYS_ERR, struct{ msg string }{msg: "receiver failed to handle msg, closing"})
							b.Unregister(sub)
						}
					}
				}
			}
		}()

		started <- true
		// wait for shutdown.
		<-stop
		close(stopBus)
		stopped <- true
	}()
	return nil
}

// create a short random ID for msgs that have none
func generateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:8]
}
