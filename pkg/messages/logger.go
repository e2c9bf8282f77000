package messages

import (
	"context"
	"log"

	femto "github.com/femtowallet/femtowallet/pkg"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MessageLogger struct {
	// MessageLogger receives femto.Message via Rec
	Rec chan femto.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements femto.MessageSubscriber
func (l MessageLogger) GetChan() chan femto.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				stopped <- true
				return
			case msg := <-l.Rec:
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(conf femto.Config) MessageLogger {
	filename := conf.Logging.EventLog
	if filename == "" {
		filename = "./events.log"
	}
	l := MessageLogger{
		make(chan femto.Message),
		log.New(&lumberjack.Logger{
			Filename: filename,
			Compress: true,
		}, "", log.Ltime|log.Lmicroseconds),
	}
	return l
}
