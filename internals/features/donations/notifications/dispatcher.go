package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Notification struct {
	Template string
	To       string
	Data     map[string]any
}

// Dispatcher hands mails off without blocking the caller. Delivery errors
// are logged, never returned.
type Dispatcher interface {
	Dispatch(ctx context.Context, ns ...Notification)
}

// AsyncDispatcher renders and sends on a small worker pool fed by a
// buffered queue. When the queue is full the mail is dropped and logged.
type AsyncDispatcher struct {
	mailer  Mailer
	logger  *slog.Logger
	timeout time.Duration

	queue chan Notification
	wg    sync.WaitGroup
	once  sync.Once
}

func NewAsyncDispatcher(mailer Mailer, logger *slog.Logger, workers, queueSize int) *AsyncDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &AsyncDispatcher{
		mailer:  mailer,
		logger:  logger,
		timeout: 30 * time.Second,
		queue:   make(chan Notification, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *AsyncDispatcher) Dispatch(_ context.Context, ns ...Notification) {
	for _, n := range ns {
		if n.To == "" {
			continue
		}
		select {
		case d.queue <- n:
		default:
			d.logger.Warn("mail queue full, dropping", "template", n.Template, "to", n.To)
		}
	}
}

func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *AsyncDispatcher) deliver(n Notification) {
	msg, err := Render(n.Template, n.To, n.Data)
	if err != nil {
		d.logger.Error("mail render failed", "template", n.Template, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("mail delivery failed", "template", n.Template, "to", n.To, "error", err)
		return
	}
	d.logger.Debug("mail sent", "template", n.Template, "to", n.To)
}

// Close drains the queue and waits for in-flight mails.
func (d *AsyncDispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}
