package stats

import (
	"fmt"
	"time"

	"mote/internal/session"
)

// Recorder periodically mirrors a running Session's counters into a
// Store. It is driven externally (by the CLI's run command, on the same
// cadence as autosave) rather than from inside the session's own control
// loop, keeping the engine itself free of any sqlite dependency (§1
// "out of scope: ... statistics printing").
type Recorder struct {
	store *Store
	name  string
}

// NewRecorder binds a Store to the session name its snapshots are filed
// under.
func NewRecorder(store *Store, sessionName string) *Recorder {
	return &Recorder{store: store, name: sessionName}
}

// Snapshot reads sess's current counters and upserts them.
func (r *Recorder) Snapshot(sess *session.Session) error {
	total, positives, negatives := sess.SessionData().Counts()
	guid1, guid2 := sess.GUID()

	lastErr := ""
	if err := sess.LastError(); err != nil {
		lastErr = err.Error()
	}

	return r.store.Record(Snapshot{
		SessionName:  r.name,
		Guid1:        guid1,
		Guid2:        guid2,
		State:        stateName(sess.State()),
		GenerationID: sess.CurrentGenerationID(),
		TotalTests:   total,
		Positives:    positives,
		Negatives:    negatives,
		Unfinished:   total - int64(positives) - int64(negatives),
		Runtime:      sess.Runtime(),
		LastError:    lastErr,
		UpdatedAt:    time.Now(),
	})
}

// Run snapshots sess every interval until stop is closed. Intended to be
// launched with `go`, alongside the session's own autosave cadence.
func (r *Recorder) Run(sess *session.Session, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = r.Snapshot(sess)
		}
	}
}

func stateName(st session.State) string {
	switch st {
	case session.StateNotStarted:
		return "not_started"
	case session.StateRunning:
		return "running"
	case session.StatePaused:
		return "paused"
	case session.StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(st))
	}
}
