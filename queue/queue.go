package queue

import (
	nats "github.com/nats-io/go-nats"
	log "github.com/sirupsen/logrus"
)

var logger *log.Entry

func init() {
	logger = log.WithFields(log.Fields{
		"package": "queue",
	})
}

// NATS is a message bus backed by a NATS connection. It adapts
// publish/subscribe to plain byte channels so consumers don't need to
// know about the transport.
type NATS struct {
	conn *nats.Conn
}

// NewNATS connects to the NATS server at url.
func NewNATS(url string) (*NATS, error) {
	logger.WithField("url", url).Debug("connecting to NATS")

	conn, err := nats.Connect(url)
	if err != nil {
		logger.WithError(err).Debug("unable to connect to NATS")
		return nil, err
	}

	return &NATS{conn: conn}, nil
}

// SenderOn returns a channel whose messages get published on the
// given subject. Closing the channel stops the publisher.
func (q *NATS) SenderOn(subject string) chan<- []byte {
	logger := logger.WithField("subject", subject)

	ch := make(chan []byte)
	go func() {
		for msg := range ch {
			if err := q.conn.Publish(subject, msg); err != nil {
				logger.WithError(err).Error("unable to publish message")
			}
		}

		logger.Debug("sender channel closed")
	}()

	return ch
}

// ReceiverOn subscribes to the given subject and returns a channel
// delivering its messages.
func (q *NATS) ReceiverOn(subject string) (<-chan []byte, error) {
	logger := logger.WithField("subject", subject)

	ch := make(chan []byte)
	_, err := q.conn.Subscribe(subject, func(msg *nats.Msg) {
		ch <- msg.Data
	})
	if err != nil {
		logger.WithError(err).Error("unable to subscribe")
		return nil, err
	}

	return ch, nil
}

// Close drains the underlying connection.
func (q *NATS) Close() {
	q.conn.Close()
}
