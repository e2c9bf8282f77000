package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"syscall"
	"time"

	femto "github.com/femtowallet/femtowallet/pkg"
	"github.com/pebbe/zmq4"
)

// interface guard ensures CoreReceiver implements femto.NodeEmitter
var _ femto.NodeEmitter = &CoreReceiver{}

// CoreReceiver receives ZMQ block notifications from the full node.
// CAUTION: the protocol is not authenticated! Subscribers MUST treat the
// received hashes as hints and fetch the real data over RPC.
type CoreReceiver struct {
	bus         femto.MessageBus
	sock        *zmq4.Socket
	listeners   []chan<- femto.NodeEvent
	nodeAddress string
}

func (z *CoreReceiver) Subscribe(ch chan<- femto.NodeEvent) {
	z.listeners = append(z.listeners, ch)
}

func NewCoreReceiver(bus femto.MessageBus, config femto.Config) (*CoreReceiver, error) {
	return &CoreReceiver{
		bus:         bus,
		listeners:   make([]chan<- femto.NodeEvent, 0, 10),
		nodeAddress: fmt.Sprintf("tcp://%s:%d", config.Core.RPCHost, config.Core.ZMQPort),
	}, nil
}

func (z *CoreReceiver) Run(started, stopped chan bool, stop chan context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return err
	}
	sock.SetRcvtimeo(2 * time.Second)
	z.sock = sock
	z.bus.Send(femto.SYS_STARTUP, fmt.Sprintf("ZMQ: connecting to: %s", z.nodeAddress))
	err = sock.Connect(z.nodeAddress)
	if err != nil {
		return err
	}
	err = sock.SetSubscribe("hashblock")
	if err != nil {
		return err
	}
	go func() {
		started <- true

		for {
			// Handle shutdown
			select {
			case <-stop:
				sock.Close()
				close(stopped)
				return
			default:
				// fall through to zmq recv
			}

			msg, err := z.sock.RecvMessageBytes(0)
			if err != nil {
				switch err := err.(type) {
				case zmq4.Errno:
					if err == zmq4.Errno(syscall.ETIMEDOUT) || err == zmq4.Errno(syscall.EAGAIN) {
						// timeouts let the shutdown check run
						continue
					}
					z.bus.Send(femto.SYS_ERR, fmt.Sprintf("ZMQ err: %s", err))
					continue
				default:
					panic(fmt.Sprintf("zmq error: %v\n", err))
				}
			}
			tag := string(msg[0])
			switch tag {
			case "hashblock":
				id := hex.EncodeToString(msg[1])
				z.notify(femto.Block, id)
			default:
				z.bus.Send(femto.SYS_ERR, fmt.Sprintf("ZMQ: unexpected tag: %s", tag))
			}
		}
	}()
	return nil
}

func (z *CoreReceiver) notify(tag femto.NodeEventType, id string) {
	e := femto.NodeEvent{Type: tag, ID: id}
	for _, ch := range z.listeners {
		// non-blocking send; listeners treat events as dirty flags.
		select {
		case ch <- e:
		default:
		}
	}
}
