package server

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// taskChanSize bounds how many pending connections can queue for a
// worker before Accept blocks.
const taskChanSize = 100

// workerFunc handles one queued task; a non-nil error is logged and the
// worker goes on to the next task.
type workerFunc = func(t *tomb.Tomb, task any) error

// workerPool is a fixed number of goroutines pulling connections off a
// shared queue.
type workerPool struct {
	n     int
	tasks chan any
}

func newWorkerPool(size int) workerPool {
	return workerPool{n: size, tasks: make(chan any, taskChanSize)}
}

// addTask enqueues a connection for a worker to pick up.
func (p *workerPool) addTask(task any) {
	p.tasks <- task
}

// setup spawns n workers under t, each repeatedly pulling a task and
// running work on it until t is dying.
func (p *workerPool) setup(t *tomb.Tomb, work workerFunc) {
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
}

func (p *workerPool) worker(t *tomb.Tomb, work workerFunc) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
