package publisher

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"metro-simulator/internal/motion"
)

// SubscribeFixes feeds readings published on <prefix>.fix.<device> into a
// new FeedSource. Stopping the source unsubscribes.
func (p *NATSPublisher) SubscribeFixes(device string, buffer int) (*motion.FeedSource, error) {
	var sub *nats.Subscription
	feed := motion.NewFeedSource(buffer, func() {
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				log.Printf("unsubscribe fixes %s: %v", device, err)
			}
		}
	})
	subject := p.subject("fix", device)
	var err error
	sub, err = p.nc.Subscribe(subject, func(m *nats.Msg) {
		if !deliverFix(feed, m.Data, time.Now()) {
			log.Printf("dropped fix for %s", device)
		}
	})
	if err != nil {
		feed.Stop()
		return nil, err
	}
	log.Printf("subscribed to %s", subject)
	return feed, nil
}

// deliverFix decodes one payload and pushes the fix or error to feed.
func deliverFix(feed *motion.FeedSource, data []byte, now time.Time) bool {
	fix, err := DecodeFix(data, now)
	if err != nil {
		return feed.Fail(err)
	}
	return feed.Push(fix)
}

// ControlFunc applies a command to the session named by id.
type ControlFunc func(ctx context.Context, id string, msg ControlMessage) error

// SubscribeControl listens on <prefix>.control.* and answers request-reply
// callers with a ControlReply.
func (p *NATSPublisher) SubscribeControl(ctx context.Context, apply ControlFunc) (*nats.Subscription, error) {
	subject := p.prefix + ".control.*"
	sub, err := p.nc.Subscribe(subject, func(m *nats.Msg) {
		reply := handleControl(ctx, m.Subject, m.Data, apply)
		if !reply.OK {
			log.Printf("control %s: %s", m.Subject, reply.Error)
		}
		if m.Reply == "" {
			return
		}
		b, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := m.Respond(b); err != nil {
			log.Printf("control reply %s: %v", m.Subject, err)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Printf("subscribed to %s", subject)
	return sub, nil
}

func handleControl(ctx context.Context, subject string, data []byte, apply ControlFunc) ControlReply {
	id := subject[strings.LastIndexByte(subject, '.')+1:]
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlReply{Error: "decode control: " + err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := apply(ctx, id, msg); err != nil {
		return ControlReply{Error: err.Error()}
	}
	return ControlReply{OK: true}
}
