package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/sirupsen/logrus"
)

// ringSize bounds how many lines LogTail keeps per connector for a
// subscriber that connects mid-run, mirroring the bounded ring buffer the
// original keeps in src/logs (LogBuffer).
const ringSize = 200

// LogTail is a logrus.Hook that fans log entries carrying a "connector"
// field out to websocket subscribers tailing that connector's job, and
// keeps a short backlog per connector so a subscriber that connects after
// the fact still sees recent history. Supplements spec.md §6's management
// API surface with the original's LogBuffer/LogBufferLayer (see main.rs).
type LogTail struct {
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	backlog     map[string][]string
	subscribers map[string]map[chan string]struct{}
}

// NewLogTail builds an empty LogTail. Install it on a logger with
// logger.AddHook(tail) to start capturing lines.
func NewLogTail(log *logging.Logger) *LogTail {
	return &LogTail{
		log:         log,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
		backlog:     make(map[string][]string),
		subscribers: make(map[string]map[chan string]struct{}),
	}
}

// Levels satisfies logrus.Hook: LogTail observes every level.
func (t *LogTail) Levels() []logrus.Level { return logrus.AllLevels }

// Fire satisfies logrus.Hook, routing the formatted entry to the
// connector's backlog and any live subscribers.
func (t *LogTail) Fire(entry *logrus.Entry) error {
	connector, ok := entry.Data["connector"].(string)
	if !ok || connector == "" {
		return nil
	}
	line, err := entry.String()
	if err != nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	buf := append(t.backlog[connector], line)
	if len(buf) > ringSize {
		buf = buf[len(buf)-ringSize:]
	}
	t.backlog[connector] = buf

	for ch := range t.subscribers[connector] {
		select {
		case ch <- line:
		default: // slow subscriber drops lines rather than blocking the pipeline
		}
	}
	return nil
}

func (t *LogTail) subscribe(connector string) ([]string, chan string) {
	ch := make(chan string, 64)
	t.mu.Lock()
	defer t.mu.Unlock()

	backlog := append([]string(nil), t.backlog[connector]...)
	if t.subscribers[connector] == nil {
		t.subscribers[connector] = make(map[chan string]struct{})
	}
	t.subscribers[connector][ch] = struct{}{}
	return backlog, ch
}

func (t *LogTail) unsubscribe(connector string, ch chan string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers[connector], ch)
	if len(t.subscribers[connector]) == 0 {
		delete(t.subscribers, connector)
	}
}

// ServeWS upgrades r to a websocket and streams connector's log lines
// (backlog first, then live) until the client disconnects.
func (t *LogTail) ServeWS(w http.ResponseWriter, r *http.Request, connector string) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.WithError(err).Warn("log tail upgrade failed")
		return
	}
	defer conn.Close()

	backlog, ch := t.subscribe(connector)
	defer t.unsubscribe(connector, ch)

	for _, line := range backlog {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	pinger := time.NewTicker(30 * time.Second)
	defer pinger.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-pinger.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
