// timer/timer.go
package timer

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

type TimerTask struct {
	Id       int64
	Interval time.Duration
	Callback func()
	timer    *quartz.Timer
}

// TimerManager owns a set of cancellable timers. Ids are never reused, so a
// callback can compare the id it was armed with against its owner's current one.
type TimerManager struct {
	clock  quartz.Clock
	tasks  map[int64]*TimerTask
	mutex  sync.Mutex
	nextId int64
}

func NewTimerManager(clock quartz.Clock) *TimerManager {
	return &TimerManager{
		clock:  clock,
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
	}
}

// AddTimer runs callback after delay, then every interval if interval > 0.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	m.tasks[task.Id] = task
	task.timer = m.clock.AfterFunc(delay, func() { m.fire(task) })
	return task.Id
}

func (m *TimerManager) fire(task *TimerTask) {
	m.mutex.Lock()
	if _, ok := m.tasks[task.Id]; !ok {
		m.mutex.Unlock()
		return
	}
	if task.Interval > 0 {
		task.timer = m.clock.AfterFunc(task.Interval, func() { m.fire(task) })
	} else {
		delete(m.tasks, task.Id)
	}
	m.mutex.Unlock()

	task.Callback()
}

// RemoveTimer cancels a timer; unknown or finished ids are ignored.
func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.tasks[timerId]; ok {
		task.timer.Stop()
		delete(m.tasks, timerId)
	}
}

// Pending reports whether a timer is still armed.
func (m *TimerManager) Pending(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.tasks[timerId]
	return ok
}

func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// StopAll cancels every timer.
func (m *TimerManager) StopAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for id, task := range m.tasks {
		task.timer.Stop()
		delete(m.tasks, id)
	}
}
