package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"habitpoints/internal/archive"
	"habitpoints/internal/service"
)

// Prober re-checks remote reachability
type Prober interface {
	ProbeAndTransition(ctx context.Context)
}

// Exporter renders the current state as an export document
type Exporter interface {
	ExportData() (string, error)
}

// Scheduler runs the background jobs of the server
type Scheduler struct {
	sched  gocron.Scheduler
	logger logrus.FieldLogger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler
func New(logger logrus.FieldLogger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sched:  sched,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddProbeJob checks connectivity every interval and lets the coordinator
// switch between remote and local operation.
func (s *Scheduler) AddProbeJob(p Prober, interval time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			p.ProbeAndTransition(s.ctx)
		}),
		gocron.WithName("connectivity-probe"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule probe job: %w", err)
	}
	return nil
}

// AddArchiveJob writes an export to sink every interval, starting at Start.
func (s *Scheduler) AddArchiveJob(exp Exporter, sink archive.Sink, interval time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			location, err := ArchiveSnapshot(s.ctx, exp, sink, s.now())
			if err != nil {
				s.logger.WithError(err).Error("Scheduled archive failed")
				return
			}
			s.logger.WithField("location", location).Info("Archived export")
		}),
		gocron.WithName("export-archive"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule archive job: %w", err)
	}
	return nil
}

// Start begins running jobs
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown cancels in-flight jobs and waits for them to return
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}

// ArchiveSnapshot exports the current state and stores it in sink under the
// export filename for now.
func ArchiveSnapshot(ctx context.Context, exp Exporter, sink archive.Sink, now time.Time) (string, error) {
	data, err := exp.ExportData()
	if err != nil {
		return "", fmt.Errorf("failed to export data: %w", err)
	}
	return sink.Put(ctx, service.ExportFilename(now), []byte(data))
}
