package timescheduler

import (
	"fmt"
	"time"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) AddNow(delay int64) int64 {
	return time.Now().Add(time.Duration(delay) * time.Second).Unix()
}

func (s *service) AfterNow(at int64) bool {
	return time.Unix(at, 0).After(time.Now())
}

// ScheduleTaskOnce runs task once at the given unix time, or right away if it's
// already past.
func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	delay := time.Until(time.Unix(at, 0))
	if delay <= 0 {
		_, err := s.scheduler.Every(1).Second().LimitRunsTo(1).Do(task)
		return err
	}

	_, err := s.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(task)
	return err
}

func (s *service) ScheduleTaskEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(task)
	return err
}
