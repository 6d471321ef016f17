package session

import (
	"os"
	"time"

	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/pkg/logger"
)

// controlLoop is the session's single supervisory thread (§5 "Session
// control-loop condvar (bounded ~500ms)"): wait on a ticker bounded by
// ControlInterval, running the end-condition, memory and delta-watchdog
// checks each tick, until Stop/Destroy closes ctrlStop. Its sibling
// cronTick, registered on internal/cron's Scheduler by launchControlLoop
// (session.go), covers autosave scheduling and the periodic cleanup
// sweep on their own coarser, whole-seconds cadence — robfig/cron's
// ConstantDelaySchedule truncates to whole seconds, so it cannot carry
// this loop's own sub-second bound.
func (s *Session) controlLoop() {
	defer close(s.ctrlDone)

	ticker := time.NewTicker(s.cfg.ControlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctrlStop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.lastControlAt = timeNow()
			s.mu.Unlock()
			s.masterControl()
		}
	}
}

// masterControl runs §4.9's periodic checks plus the §4.8 safeguard (i)
// delta-controller watchdog, in order, short-circuiting once any check
// has already begun ending the session. checkSave and checkCleanup run
// on their own cron-scheduled cadence (cronTick, below) rather than
// here, so they are not duplicated against this ticker's sub-second
// bound.
func (s *Session) masterControl() {
	if s.aborted() {
		return
	}
	if s.checkEndConditions() {
		return
	}
	if s.checkMemory() {
		return
	}
	s.checkDeltaWatchdogs()
}

// cronTick is the github.com/robfig/cron/v3 entry launchControlLoop
// registers (§4.9): autosave scheduling and the periodic cleanup sweep,
// run on a coarser, whole-seconds cadence than masterControl's ticker
// since neither needs sub-second latency.
func (s *Session) cronTick() {
	if s.aborted() {
		return
	}
	s.checkSave()
	s.checkCleanup()
}

// checkEndConditions implements step 1: overall-tests, found-positives,
// found-negatives, and wall-clock timeout goals. Generation-level
// convergence failure is detected inline by RecordGenerationAttempt in
// generate.go, not here.
func (s *Session) checkEndConditions() bool {
	cfg := s.cfg
	total, positives, negatives := s.data.Counts()

	switch {
	case cfg.UseOverallTests && total >= cfg.OverallTests:
	case cfg.UseFoundPositives && int64(positives) >= cfg.FoundPositives:
	case cfg.UseFoundNegatives && int64(negatives) >= cfg.FoundNegatives:
	case cfg.UseTimeout && s.elapsedRuntime() >= cfg.Timeout:
		s.endSession(errkind.ErrTimeout)
		return true
	default:
		return false
	}
	s.endSession(errkind.ErrGoalReached)
	return true
}

func (s *Session) elapsedRuntime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtimeLocked()
}

// checkSave implements step 2: spawn a detached save if either autosave
// threshold has been crossed since the last one.
func (s *Session) checkSave() {
	if !s.cfg.EnableSaves {
		return
	}

	total, _, _ := s.data.Counts()

	s.mu.Lock()
	byTests := s.cfg.AutosavePeriodTests > 0 && total-s.lastAutosaveTests >= s.cfg.AutosavePeriodTests
	bySeconds := s.cfg.AutosavePeriodSeconds > 0 && timeNow().Sub(s.lastAutosaveAt) >= s.cfg.AutosavePeriodSeconds
	due := byTests || bySeconds
	if due {
		s.lastAutosaveTests = total
		s.lastAutosaveAt = timeNow()
	}
	s.mu.Unlock()

	if !due {
		return
	}
	path, opts := s.defaultSaveTarget()
	go func() {
		if err := s.Save(path, opts); err != nil {
			logger.Error().Err(err).Msg("session: autosave failed")
		}
	}()
}

// checkMemory implements step 3: sweep once the soft limit is crossed,
// then arm (and, on re-confirmation, act on) a hard-limit timer. Reads
// this process's own RSS, not a PUT's — the engine's own working set is
// what §4.9 asks MasterControl to police.
func (s *Session) checkMemory() bool {
	if s.cfg.MemoryLimitBytes <= 0 && s.cfg.MemorySoftLimitBytes <= 0 {
		return false
	}
	rss, err := exechandler.ReadProcessRSS(os.Getpid())
	if err != nil {
		return false
	}

	if s.cfg.MemorySoftLimitBytes > 0 && rss > s.cfg.MemorySoftLimitBytes {
		s.data.SweepHalf()
	}

	if s.cfg.MemoryLimitBytes <= 0 || rss <= s.cfg.MemoryLimitBytes {
		s.mu.Lock()
		s.memoryHardSince = time.Time{}
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	if s.memoryHardSince.IsZero() {
		s.memoryHardSince = timeNow()
		s.mu.Unlock()
		return false
	}
	elapsed := timeNow().Sub(s.memoryHardSince)
	s.mu.Unlock()

	const hardConfirmWindow = 100 * time.Millisecond
	if elapsed < hardConfirmWindow {
		return false
	}

	s.endSession(errkind.ErrOutOfMemory)
	return true
}

// checkCleanup implements step 4: walk the negative and unfinished
// indices, dropping entries whose backing Input is gone, Duplicate, or
// Deleted.
func (s *Session) checkCleanup() {
	s.data.Cleanup(func(id uint64) (exists, duplicate, deleted bool) {
		in, err := form.Lookup[*domain.Input](s.registry, id)
		if err != nil {
			return false, false, false
		}
		return true, in.HasFlag(domain.FlagDuplicate), in.HasFlag(domain.FlagDeleted)
	})
}

// checkDeltaWatchdogs implements §4.8 safeguard (i): any controller whose
// batch has quietly drained without firing EnqueueEvaluate, or whose
// evaluate task was enqueued but never ran, gets re-driven directly.
func (s *Session) checkDeltaWatchdogs() {
	s.mu.Lock()
	entries := make([]*controllerEntry, 0, len(s.controllers))
	for _, entry := range s.controllers {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		if entry.controller.NeedsEvaluateRequeue() {
			entry.controller.RequeueEvaluate()
		}
	}
}
