package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"composewatch/internal/models"
	"composewatch/internal/notifier"
)

// ShouldAlert reports whether an error streak of count polls is due for an
// alert: every threshold-th consecutive error poll.
func ShouldAlert(count, threshold int) bool {
	if threshold < 1 {
		threshold = 1
	}
	return count > 0 && count%threshold == 0
}

type Sender interface {
	Send(ctx context.Context, p notifier.Payload) (int, error)
	WantsTitle() bool
}

type Journal interface {
	InsertAlertEvent(ctx context.Context, e models.AlertEvent) (int64, error)
}

type Dispatcher struct {
	notify  Sender
	journal Journal
	log     *slog.Logger
	project string
	wait    time.Duration
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. journal may be nil.
func NewDispatcher(notify Sender, journal Journal, logger *slog.Logger, project string, wait time.Duration) *Dispatcher {
	return &Dispatcher{notify: notify, journal: journal, log: logger, project: project, wait: wait, now: time.Now}
}

// Dispatch delivers one alert for rec. Failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.ContainerRecord) {
	short := ShortName(rec.Name, d.project)
	elapsed := d.wait.Seconds() * float64(rec.ConsecutiveErrors)
	headline := fmt.Sprintf("Container %s is %s", short, rec.Status)
	p := notifier.Payload{Text: Message(short, rec, elapsed)}
	if d.notify.WantsTitle() {
		p.Title = headline
	}

	d.log.Info("alerting", "container", rec.Name, "status", rec.Status.String(), "errors", rec.ConsecutiveErrors)
	code, err := d.notify.Send(ctx, p)
	if err != nil {
		if code != 0 {
			d.log.Warn("alert rejected", "container", rec.Name, "status_code", code, "err", err)
		} else {
			d.log.Error("alert delivery failed", "container", rec.Name, "err", err)
		}
	}

	if d.journal == nil {
		return
	}
	ev := models.AlertEvent{
		TS:             d.now().UTC(),
		Project:        d.project,
		Container:      rec.Name,
		Status:         rec.Status,
		ErrorCount:     rec.ConsecutiveErrors,
		ElapsedSeconds: elapsed,
		Message:        headline,
		Delivered:      err == nil,
		HTTPStatus:     code,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if _, jErr := d.journal.InsertAlertEvent(ctx, ev); jErr != nil {
		d.log.Warn("journal alert", "container", rec.Name, "err", jErr)
	}
}

// ShortName strips the project prefix and the separator that follows it.
func ShortName(name, project string) string {
	if project == "" || !strings.HasPrefix(name, project) {
		return name
	}
	short := strings.TrimLeft(strings.TrimPrefix(name, project), "-_")
	if short == "" {
		return name
	}
	return short
}

func Message(short string, rec models.ContainerRecord, elapsed float64) string {
	return fmt.Sprintf("\nContainer %s is %s\nThis has been in error for at least %.2f seconds.\n\nError message: %s\n",
		short, rec.Status, elapsed, rec.LastErrorMessage)
}
