package calendar

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DueDateLayout is the date format used for task due dates and event dates.
const DueDateLayout = "2006-01-02"

// ReminderCallback receives tasks that are due and not yet done.
type ReminderCallback func(task Task)

// Reminders periodically scans the planner for due, unfinished tasks and
// notifies once per task per process lifetime.
type Reminders struct {
	store    *Store
	callback ReminderCallback
	cron     *cron.Cron
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewReminders creates a reminder scheduler over store.
func NewReminders(store *Store, callback ReminderCallback) *Reminders {
	return &Reminders{
		store:    store,
		callback: callback,
		cron:     cron.New(),
		notified: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Start begins the periodic due-task scan.
func (r *Reminders) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", r.Check); err != nil {
		return err
	}
	r.cron.Start()
	log.Info().Msg("Task reminders started")
	return nil
}

// Stop halts the scan. Already-running checks finish.
func (r *Reminders) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Task reminders stopped")
}

// Check scans once for due tasks. Exposed so a check can be forced outside
// the cron cadence.
func (r *Reminders) Check() {
	today := r.now().Format(DueDateLayout)

	for _, task := range r.store.Data().Tasks {
		if task.Done || task.Due == "" {
			continue
		}
		if task.Due > today {
			continue
		}

		r.mu.Lock()
		if _, seen := r.notified[task.ID]; seen {
			r.mu.Unlock()
			continue
		}
		r.notified[task.ID] = struct{}{}
		r.mu.Unlock()
		log.Info().Str("task", task.Title).Str("due", task.Due).Msg("Task due")
		if r.callback != nil {
			r.callback(task)
		}
	}
}
