package lifecycle

// workers.go tracks goroutines spawned by long-running subsystems.
//
// Go has no way to enumerate goroutines with join handles, so subsystems that
// spawn work the process must wait for at exit go through WorkerSet.Go. The
// set keeps a done channel per worker; Drain joins the non-daemon ones in
// bounded polling intervals so a second termination signal stays observable
// while the drain is blocked.

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Worker is a tracked goroutine.
type Worker struct {
	ID      uint64
	Name    string
	Daemon  bool
	Started time.Time

	goid atomic.Int64
	done chan struct{}
}

// Done is closed when the worker function returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Alive reports whether the worker function is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// WorkerInfo is a point-in-time view of a live worker.
type WorkerInfo struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Daemon      bool      `json:"daemon"`
	GoroutineID int64     `json:"goroutine_id"`
	Started     time.Time `json:"started"`
}

// WorkerSet is the set of live workers other than the supervising goroutine.
// Membership is controlled by whichever subsystem spawned each worker.
type WorkerSet struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Worker
}

// NewWorkerSet creates an empty worker set.
func NewWorkerSet() *WorkerSet {
	return &WorkerSet{live: make(map[uint64]*Worker)}
}

// Go runs fn in a new tracked goroutine. Daemon workers may be abandoned at
// exit; non-daemon workers are joined by Drain. A panic in fn is logged and
// ends only that worker.
func (s *WorkerSet) Go(name string, daemon bool, fn func()) *Worker {
	s.mu.Lock()
	s.nextID++
	w := &Worker{
		ID:      s.nextID,
		Name:    name,
		Daemon:  daemon,
		Started: time.Now(),
		done:    make(chan struct{}),
	}
	s.live[w.ID] = w
	s.mu.Unlock()

	go func() {
		w.goid.Store(currentGoroutineID())
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker panicked",
					"worker", w.Name,
					"panic", fmt.Sprint(r),
				)
			}
			s.mu.Lock()
			delete(s.live, w.ID)
			s.mu.Unlock()
			close(w.done)
		}()
		fn()
	}()

	return w
}

// Live returns the live workers ordered by spawn order.
func (s *WorkerSet) Live() []WorkerInfo {
	s.mu.Lock()
	infos := make([]WorkerInfo, 0, len(s.live))
	for _, w := range s.live {
		infos = append(infos, WorkerInfo{
			ID:          w.ID,
			Name:        w.Name,
			Daemon:      w.Daemon,
			GoroutineID: w.goid.Load(),
			Started:     w.Started,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Counts returns the number of live daemon and non-daemon workers.
func (s *WorkerSet) Counts() (daemon, nonDaemon int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.live {
		if w.Daemon {
			daemon++
		} else {
			nonDaemon++
		}
	}
	return daemon, nonDaemon
}

// names maps goroutine ids to worker names for stack dumps.
func (s *WorkerSet) names() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[int64]string, len(s.live))
	for _, w := range s.live {
		if id := w.goid.Load(); id != 0 {
			m[id] = w.Name
		}
	}
	return m
}

func (s *WorkerSet) pending() []*Worker {
	s.mu.Lock()
	var ws []*Worker
	for _, w := range s.live {
		if !w.Daemon {
			ws = append(ws, w)
		}
	}
	s.mu.Unlock()

	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	return ws
}

// Drain blocks until every non-daemon worker has returned, waiting on each in
// increments of poll. Workers spawned while draining are picked up on the
// next pass. It returns the number of workers joined.
func (s *WorkerSet) Drain(poll time.Duration) int {
	joined := 0
	timer := time.NewTimer(poll)
	defer timer.Stop()

	for {
		pending := s.pending()
		if len(pending) == 0 {
			return joined
		}

		for _, w := range pending {
			for w.Alive() {
				timer.Reset(poll)
				select {
				case <-w.done:
				case <-timer.C:
				}
			}
			joined++
		}
	}
}

// currentGoroutineID parses the id from the "goroutine N [" stack header.
func currentGoroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
