package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"metro-simulator/internal/sim"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	format      Format
	logSubjects bool
	metrics     PublisherMetrics
}

var _ sim.Observer = (*NATSPublisher)(nil)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, format Format, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("metro-simulator"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), format: format, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) subject(kind, id string) string {
	return subjectFor(p.prefix, kind, id)
}

func subjectFor(prefix, kind, id string) string {
	return prefix + "." + kind + "." + subjectToken(id)
}

// OnFrame publishes the position, then any alerts and crossings of the tick.
func (p *NATSPublisher) OnFrame(f sim.Frame) {
	if err := p.PublishPosition(f); err != nil {
		log.Printf("publish position %s: %v", f.Session, err)
	}
	for _, m := range alertMessages(f) {
		if err := p.publishJSON(p.subject("alert", f.Session), m); err != nil {
			log.Printf("publish alert %s: %v", f.Session, err)
		}
	}
	for _, id := range f.Update.Crossed {
		m := CrossingMessage{SessionID: f.Session, StationID: id, Timestamp: f.Update.At}
		if err := p.publishJSON(p.subject("crossing", f.Session), m); err != nil {
			log.Printf("publish crossing %s: %v", f.Session, err)
		}
	}
}

func (p *NATSPublisher) OnError(session string, err error) {
	m := ErrorMessage{SessionID: session, Error: err.Error(), Timestamp: time.Now()}
	if perr := p.publishJSON(p.subject("error", session), m); perr != nil {
		log.Printf("publish error %s: %v", session, perr)
	}
}

func (p *NATSPublisher) PublishPosition(f sim.Frame) error {
	subject := p.subject("position", f.Session)
	if p.format == FormatGTFSRT {
		b, err := EncodeVehiclePosition(f)
		if err != nil {
			return err
		}
		return p.publish(subject, b)
	}
	return p.publishJSON(subject, NewPositionMessage(f))
}

func (p *NATSPublisher) publishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.publish(subject, b)
}

func (p *NATSPublisher) publish(subject string, b []byte) error {
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err := p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
