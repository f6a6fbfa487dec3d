package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/chen893/habit-coach-server/internal/db"
	"github.com/chen893/habit-coach-server/internal/narrative"
	"github.com/chen893/habit-coach-server/internal/report"
)

// Scheduler runs the background coaching jobs: daily letters per habit,
// a weekly review, and health checks.
type Scheduler struct {
	scheduler gocron.Scheduler
	reportGen *ReportGenerator
	timezone  *time.Location
}

// Config holds scheduler configuration.
type Config struct {
	Timezone string
	// Clock is injected in tests; nil means the real clock.
	Clock clockwork.Clock
}

// New creates a scheduler wired to the store, report writer, and narrative
// generator.
func New(database *db.DB, writer *report.Writer, gen *narrative.Resilient, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	opts := []gocron.SchedulerOption{gocron.WithLocation(tz)}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}

	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		reportGen: NewReportGenerator(database, writer, gen, tz),
		timezone:  tz,
	}, nil
}

// Start registers all jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	// Daily coaching letters at 06:00
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(6, 0, 0))),
		gocron.NewTask(s.runDaily),
		gocron.WithName("daily-reports"),
	)
	if err != nil {
		return err
	}

	// Weekly review on Sunday at 08:00
	_, err = s.scheduler.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Sunday), gocron.NewAtTimes(gocron.NewAtTime(8, 0, 0))),
		gocron.NewTask(s.runWeekly),
		gocron.WithName("weekly-reports"),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	log.Println("Scheduler started")
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runDaily() {
	log.Println("Running daily report generation...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.reportGen.GenerateDailyReports(ctx, time.Now().In(s.timezone)); err != nil {
		log.Printf("Daily report generation: %v", err)
	}
}

func (s *Scheduler) runWeekly() {
	log.Println("Running weekly report generation...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.reportGen.GenerateWeeklyReports(ctx, time.Now().In(s.timezone)); err != nil {
		log.Printf("Weekly report generation: %v", err)
	}
}

// Generator exposes the report generator for on-demand endpoints.
func (s *Scheduler) Generator() *ReportGenerator {
	return s.reportGen
}
