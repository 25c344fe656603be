package predictor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loanapproval/ml"
)

// Session is one interactive user session. It keeps the predictor it started
// with, so a reload mid-session does not change its answers.
type Session struct {
	ID      string
	Started time.Time

	predictor *Predictor
	observer  Observer
	logger    *zap.Logger

	mu       sync.Mutex
	history  []*Result
	failures int
	closed   bool
}

// maxHistory bounds the per-session history.
const maxHistory = 100

// NewSession starts a session on the current predictor. It fails with the
// last load error when no artifacts are loaded.
func (r *Registry) NewSession() (*Session, error) {
	p, err := r.Current()
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:        uuid.NewString(),
		Started:   time.Now(),
		predictor: p,
		observer:  r.observer,
		logger:    r.logger,
	}
	s.observer.SessionOpened()
	s.logger.Debug("session opened", zap.String("session", s.ID), zap.String("version", p.Bundle().Version()))
	return s, nil
}

// Submit predicts one applicant. Errors are per submission; the session
// stays usable.
func (s *Session) Submit(app ml.Applicant) (*Result, error) {
	res, err := s.predictor.Predict(app)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.observer.RecordError(ErrorKind(err))
		s.logger.Info("submission rejected",
			zap.String("session", s.ID),
			zap.String("kind", ErrorKind(err)),
			zap.Error(err),
		)
		return nil, err
	}
	s.observer.RecordPrediction(res.Approved, res.Probability, res.Elapsed, res.Cached)
	s.history = append(s.history, res)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	return res, nil
}

func (s *Session) Predictor() *Predictor { return s.predictor }

// History returns the successful results, oldest first.
func (s *Session) History() []*Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Result(nil), s.history...)
}

func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Close ends the session; calling it again is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.observer.SessionClosed()
	s.logger.Debug("session closed", zap.String("session", s.ID), zap.Int("submissions", len(s.history)+s.failures))
}
