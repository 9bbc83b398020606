package tickerscheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/custodyd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Option func(*service)

func WithTickerInterval(interval time.Duration) Option {
	return func(s *service) {
		s.tickerInterval = interval
	}
}

type periodicTask struct {
	interval time.Duration
	next     time.Time
	task     func()
}

// service polls the wall clock and runs the tasks that are due. It trades the
// precision of gocron for a single goroutine.
type service struct {
	lock           sync.Locker
	tasks          map[int64][]func()
	periodicTasks  []*periodicTask
	stopCh         chan struct{}
	stopOnce       sync.Once
	tickerInterval time.Duration
}

func NewScheduler(opts ...Option) ports.SchedulerService {
	svc := &service{
		lock:           &sync.Mutex{},
		tasks:          make(map[int64][]func()),
		stopCh:         make(chan struct{}),
		tickerInterval: time.Second,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

func (s *service) Start() {
	go func() {
		ticker := time.NewTicker(s.tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				tasks := s.popTasks(now)
				if len(tasks) > 0 {
					log.Debugf("running %d scheduled tasks", len(tasks))
				}
				for _, task := range tasks {
					go task()
				}
			}
		}
	}()
}

func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *service) AddNow(delay int64) int64 {
	return time.Now().Unix() + delay
}

func (s *service) AfterNow(at int64) bool {
	return at > time.Now().Unix()
}

func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tasks[at] = append(s.tasks[at], task)
	return nil
}

func (s *service) ScheduleTaskEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.periodicTasks = append(s.periodicTasks, &periodicTask{
		interval: interval,
		next:     time.Now().Add(interval),
		task:     task,
	})
	return nil
}

func (s *service) popTasks(now time.Time) []func() {
	s.lock.Lock()
	defer s.lock.Unlock()

	tasks := make([]func(), 0)
	for at, atTasks := range s.tasks {
		if at > now.Unix() {
			continue
		}
		tasks = append(tasks, atTasks...)
		delete(s.tasks, at)
	}

	for _, t := range s.periodicTasks {
		if now.Before(t.next) {
			continue
		}
		tasks = append(tasks, t.task)
		t.next = now.Add(t.interval)
	}

	return tasks
}
