// Package delivery sends due lessons to their course's phone number on a
// cron schedule.
package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/metrics"
	outbox "github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

type Config struct {
	Schedule string
	TimeZone string
}

// ConfigFromEnv reads DELIVERY_SCHEDULE (cron spec, default every minute)
// and DELIVERY_TIMEZONE (IANA name used for delivery times, default UTC).
func ConfigFromEnv() Config {
	return Config{
		Schedule: utilities.EnvOr("DELIVERY_SCHEDULE", "@every 1m"),
		TimeZone: utilities.EnvOr("DELIVERY_TIMEZONE", "UTC"),
	}
}

// LessonSource lists lessons waiting for delivery. Courses with an attempt
// recorded at or after dayStart are not listed.
type LessonSource interface {
	Due(ctx context.Context, now, dayStart time.Time) ([]entity.DueLesson, error)
}

// Recorder stores delivery attempts. Record reports false when the lesson
// already has one.
type Recorder interface {
	Record(ctx context.Context, m *outbox.Message) (bool, error)
	Finish(ctx context.Context, id string, status outbox.Status, lastError string) error
}

type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// Result summarizes one run.
type Result struct {
	Sent    int
	Failed  int
	Waiting int
}

type Dispatcher struct {
	cfg     Config
	lessons LessonSource
	outbox  Recorder
	sender  Sender
	clock   clockwork.Clock
	loc     *time.Location
	logger  *zap.SugaredLogger
	cron    *cron.Cron
}

func New(cfg Config, lessons LessonSource, rec Recorder, sender Sender, clock clockwork.Clock, logger *zap.SugaredLogger) (*Dispatcher, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("delivery time zone %q: %w", cfg.TimeZone, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		cfg:     cfg,
		lessons: lessons,
		outbox:  rec,
		sender:  sender,
		clock:   clock,
		loc:     loc,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}, nil
}

// RunOnce sends every lesson that is due now, at most one per course and
// local day. The attempt is recorded before sending, so each lesson gets one
// attempt and failures are not retried.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	start := d.clock.Now()
	defer func() { metrics.RecordDeliveryRun(d.clock.Since(start)) }()

	var res Result
	local := start.In(d.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	due, err := d.lessons.Due(ctx, start.UTC(), dayStart.UTC())
	if err != nil {
		return res, fmt.Errorf("list due lessons: %w", err)
	}

	for _, l := range due {
		if !Deliverable(l.DeliverySchedule, l.DeliveryTime, local) {
			res.Waiting++
			continue
		}
		text := Format(l)
		msg := &outbox.Message{
			LessonID:    l.LessonID,
			CourseID:    l.CourseID,
			PhoneNumber: l.PhoneNumber,
			Body:        text,
			Status:      outbox.StatusPending,
		}
		ok, err := d.outbox.Record(ctx, msg)
		if err != nil {
			d.logger.Errorw("record delivery attempt", "lesson", l.LessonID, "course", l.CourseID, "err", err)
			continue
		}
		if !ok {
			continue
		}

		sendErr := d.sender.Send(ctx, l.PhoneNumber, text)
		metrics.RecordDelivery(sendErr)
		status, lastErr := outbox.StatusSent, ""
		if sendErr != nil {
			status, lastErr = outbox.StatusFailed, sendErr.Error()
			res.Failed++
			d.logger.Warnw("lesson delivery failed", "lesson", l.LessonID, "course", l.CourseID, "err", sendErr)
		} else {
			res.Sent++
			d.logger.Infow("lesson delivered", "lesson", l.LessonID, "course", l.CourseID, "order", l.OrderNumber)
		}
		if err := d.outbox.Finish(ctx, msg.ID, status, lastErr); err != nil {
			d.logger.Errorw("finish delivery attempt", "lesson", l.LessonID, "status", status, "err", err)
		}
	}
	return res, nil
}

// Deliverable reports whether a course with the given cadence and "HH:MM"
// delivery time may receive a lesson at local time now.
func Deliverable(schedule entity.Schedule, deliveryTime string, now time.Time) bool {
	if !schedule.Includes(now.Weekday()) {
		return false
	}
	h, m, ok := parseClock(deliveryTime)
	if !ok {
		return true
	}
	return now.Hour()*60+now.Minute() >= h*60+m
}

func parseClock(s string) (int, int, bool) {
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// Format renders the message body of a lesson.
func Format(l entity.DueLesson) string {
	return fmt.Sprintf("%s\nLesson %d: %s\n\n%s", l.CourseName, l.OrderNumber, l.Title, l.Content)
}

// AddFunc schedules an extra job on the dispatcher's cron.
func (d *Dispatcher) AddFunc(spec string, fn func()) error {
	_, err := d.cron.AddFunc(spec, fn)
	return err
}

// Start schedules RunOnce and starts the cron. Runs use ctx.
func (d *Dispatcher) Start(ctx context.Context) error {
	_, err := d.cron.AddFunc(d.cfg.Schedule, func() {
		res, err := d.RunOnce(ctx)
		if err != nil {
			d.logger.Errorw("delivery run failed", "err", err)
			return
		}
		if res.Sent+res.Failed > 0 {
			d.logger.Infow("delivery run", "sent", res.Sent, "failed", res.Failed, "waiting", res.Waiting)
		}
	})
	if err != nil {
		return fmt.Errorf("delivery schedule %q: %w", d.cfg.Schedule, err)
	}
	d.cron.Start()
	d.logger.Infow("delivery dispatcher started", "schedule", d.cfg.Schedule, "tz", d.loc.String())
	return nil
}

// Stop stops the cron; the returned context is done when running jobs finish.
func (d *Dispatcher) Stop() context.Context {
	return d.cron.Stop()
}
