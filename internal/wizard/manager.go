package wizard

import (
	"context"
	"errors"
	"sync"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Manager keeps one active session per operator, persists drafts and runs
// generation in the background.
type Manager struct {
	ctrl   *Controller
	drafts DraftStore
	log    *logger.Logger

	mu      sync.Mutex
	entries map[primitive.ObjectID]*entry
	closed  bool
	wg      sync.WaitGroup
}

type entry struct {
	mu      sync.Mutex
	session *Session
	cancel  context.CancelFunc // Cancels in-flight generation
	ticket  string
	dropped bool // removed from Manager.entries
}

func NewManager(ctrl *Controller, drafts DraftStore, log *logger.Logger) *Manager {
	if drafts == nil {
		drafts = NewMemoryDraftStore()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		ctrl:    ctrl,
		drafts:  drafts,
		log:     log.With("component", "wizard-manager"),
		entries: make(map[primitive.ObjectID]*entry),
	}
}

// Controller exposes the controller sessions are driven with.
func (m *Manager) Controller() *Controller {
	return m.ctrl
}

// Open resumes the operator's active session, or starts a new one.
func (m *Manager) Open(ctx context.Context, operator domain.Identity, ownerID primitive.ObjectID) (Session, error) {
	e := m.lock(operator.UserID)
	defer m.unlock(operator.UserID, e)

	if err := m.load(ctx, e, operator.UserID); err != nil {
		return Session{}, err
	}
	if e.session != nil {
		return e.session.Clone(), nil
	}
	s := m.ctrl.NewSession(operator, ownerID)
	m.store(ctx, e, s)
	m.log.Info("Wizard session opened", "session", s.ID, "operator", operator.UserID.Hex(), "flow", s.Flow)
	return s.Clone(), nil
}

// OpenForProtocol replaces the operator's session with one editing p.
func (m *Manager) OpenForProtocol(ctx context.Context, operator domain.Identity, p domain.Protocol) (Session, error) {
	s, err := m.ctrl.OpenForProtocol(operator, p)
	if err != nil {
		return Session{}, err
	}
	e := m.lock(operator.UserID)
	defer m.unlock(operator.UserID, e)
	m.stopGeneration(e)
	m.store(ctx, e, s)
	m.log.Info("Wizard session opened for edit", "session", s.ID, "protocolId", p.ID.Hex())
	return s.Clone(), nil
}

// Get returns the operator's active session.
func (m *Manager) Get(ctx context.Context, operatorID primitive.ObjectID) (Session, error) {
	e := m.lock(operatorID)
	defer m.unlock(operatorID, e)
	if err := m.load(ctx, e, operatorID); err != nil {
		return Session{}, err
	}
	if e.session == nil {
		return Session{}, &domain.NotFoundError{Kind: "session", ID: operatorID.Hex()}
	}
	return e.session.Clone(), nil
}

// Apply runs op against the operator's session and stores the result. The
// session id guards against acting on a session that has been replaced.
func (m *Manager) Apply(ctx context.Context, operatorID primitive.ObjectID, sessionID string, op func(Session) (Session, error)) (Session, error) {
	e := m.lock(operatorID)
	defer m.unlock(operatorID, e)
	if err := m.load(ctx, e, operatorID); err != nil {
		return Session{}, err
	}
	if e.session == nil || e.session.ID != sessionID {
		return Session{}, &domain.NotFoundError{Kind: "session", ID: sessionID}
	}

	next, err := op(e.session.Clone())
	if next.ID != sessionID {
		// op returned a zero session; keep the current one
		return e.session.Clone(), err
	}
	if e.cancel != nil && (next.Step != StepGeneration || next.Status.Terminal()) {
		m.stopGeneration(e)
		next.Generation.InFlight = false
		next.Generation.Ticket = ""
	}
	m.store(ctx, e, next)
	return next.Clone(), err
}

// errGenerationInterrupted reports a generation abandoned because the session
// left the generation step before it finished.
var errGenerationInterrupted = errors.New("generation interrupted")

// generationRun is the outcome of one background generation. session and err
// are set before done is closed.
type generationRun struct {
	done    chan struct{}
	applied bool
	session Session
	err     error
}

// StartGeneration begins generating content for the session in the
// background. The result is applied only if the session is still on the
// generation step with the same ticket when it arrives.
func (m *Manager) StartGeneration(ctx context.Context, operatorID primitive.ObjectID, sessionID string) (Session, error) {
	s, _, err := m.start(ctx, operatorID, sessionID)
	return s, err
}

// Generate starts generation like StartGeneration and waits for its result.
// The operator is not locked while waiting, so Back or Cancel abort the call.
func (m *Manager) Generate(ctx context.Context, operatorID primitive.ObjectID, sessionID string) (Session, error) {
	s, run, err := m.start(ctx, operatorID, sessionID)
	if err != nil {
		return s, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		// the result still lands on the session
		return s, ctx.Err()
	}
	if run.applied {
		return run.session, run.err
	}
	cur, err := m.Get(ctx, operatorID)
	if err != nil {
		return Session{}, err
	}
	return cur, &domain.GenerationError{Err: errGenerationInterrupted}
}

func (m *Manager) start(ctx context.Context, operatorID primitive.ObjectID, sessionID string) (Session, *generationRun, error) {
	e := m.lock(operatorID)
	defer m.unlock(operatorID, e)
	if err := m.load(ctx, e, operatorID); err != nil {
		return Session{}, nil, err
	}
	if e.session == nil || e.session.ID != sessionID {
		return Session{}, nil, &domain.NotFoundError{Kind: "session", ID: sessionID}
	}
	s := e.session.Clone()
	prompt, err := m.ctrl.preparePrompt(s)
	if err != nil {
		return s, nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return s, nil, errors.New("wizard manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	m.stopGeneration(e)
	genCtx, cancel := context.WithCancel(context.Background())
	ticket := uuid.NewString()
	e.cancel = cancel
	e.ticket = ticket
	s.Generation.InFlight = true
	s.Generation.Ticket = ticket
	m.store(ctx, e, s)

	run := &generationRun{done: make(chan struct{})}
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(run.done)
		content, genErr := m.ctrl.generate(genCtx, prompt)
		m.finishGeneration(operatorID, ticket, prompt, content, genErr, run)
	}()
	return s.Clone(), run, nil
}

func (m *Manager) finishGeneration(operatorID primitive.ObjectID, ticket string, prompt generation.Prompt, content domain.ProtocolContent, genErr error, run *generationRun) {
	e := m.lookup(operatorID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer m.unlock(operatorID, e)

	s := e.session
	if e.ticket != ticket || s == nil || s.Generation.Ticket != ticket || s.Step != StepGeneration || s.Status.Terminal() {
		m.log.Debug("Discarding stale generation result", "operator", operatorID.Hex(), "ticket", ticket)
		return
	}
	e.cancel = nil
	e.ticket = ""
	next, err := m.ctrl.applyGeneration(*s, prompt, content, genErr)
	m.store(context.Background(), e, next)
	run.applied = true
	run.session = next.Clone()
	run.err = err
}

// Close cancels in-flight generation and waits for background work to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		m.stopGeneration(e)
		e.mu.Unlock()
	}
	m.wg.Wait()
}

// lock returns the operator's entry, creating it if needed, with its mutex
// held. An entry dropped while we waited for it is skipped.
func (m *Manager) lock(operatorID primitive.ObjectID) *entry {
	for {
		m.mu.Lock()
		e, ok := m.entries[operatorID]
		if !ok {
			e = &entry{}
			m.entries[operatorID] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if !e.dropped {
			return e
		}
		e.mu.Unlock()
	}
}

func (m *Manager) lookup(operatorID primitive.ObjectID) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[operatorID]
}

// unlock releases e. An entry with no session and no generation running is
// dropped so the map only holds operators with live work.
func (m *Manager) unlock(operatorID primitive.ObjectID, e *entry) {
	if !e.dropped && e.session == nil && e.cancel == nil {
		m.mu.Lock()
		if m.entries[operatorID] == e {
			delete(m.entries, operatorID)
		}
		m.mu.Unlock()
		e.dropped = true
	}
	e.mu.Unlock()
}

// load pulls a persisted draft into e when nothing is held in memory.
func (m *Manager) load(ctx context.Context, e *entry, operatorID primitive.ObjectID) error {
	if e.session != nil {
		return nil
	}
	s, err := m.drafts.Load(ctx, operatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &domain.PersistenceError{Op: "load draft", Err: err}
	}
	if s.Status.Terminal() {
		return nil
	}
	// A generation that was running before the restart is gone.
	s.Generation.InFlight = false
	s.Generation.Ticket = ""
	e.session = &s
	return nil
}

// store keeps s as the entry's session and persists it. Terminal sessions
// leave memory and drop their draft.
func (m *Manager) store(ctx context.Context, e *entry, s Session) {
	if s.Status.Terminal() {
		e.session = nil
		if err := m.drafts.Delete(ctx, s.OperatorID); err != nil {
			m.log.Error("Failed to delete wizard draft", "session", s.ID, "error", err)
		}
		return
	}
	e.session = &s
	if err := m.drafts.Save(ctx, s); err != nil {
		m.log.Error("Failed to persist wizard draft", "session", s.ID, "error", err)
	}
}

func (m *Manager) stopGeneration(e *entry) {
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.ticket = ""
}
