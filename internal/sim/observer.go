package sim

import "log"

// Multi fans frames out to several observers in order.
type Multi []Observer

func (m Multi) OnFrame(f Frame) {
	for _, o := range m {
		o.OnFrame(f)
	}
}

func (m Multi) OnError(session string, err error) {
	for _, o := range m {
		o.OnError(session, err)
	}
}

// LogObserver writes alerts and crossings to the standard logger.
type LogObserver struct{}

func (LogObserver) OnFrame(f Frame) {
	for _, a := range f.Alerts {
		log.Printf("session %s alert [%s/%s] %s", f.Session, a.Category, a.Kind, a.Message)
	}
}

func (LogObserver) OnError(session string, err error) {
	log.Printf("session %s location error: %v", session, err)
}
