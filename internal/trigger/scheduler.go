package trigger

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler fires the recurring health-check trigger on a cron expression.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Add registers fn to run with a schedule trigger on the given cron spec.
func (s *Scheduler) Add(spec string, fn func(Trigger)) error {
	_, err := s.cron.AddFunc(spec, func() {
		log.Info().Str("schedule", spec).Msg("scheduled health run")
		fn(Schedule())
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
