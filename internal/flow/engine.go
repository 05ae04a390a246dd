// Package flow implements the conversation engine for Review Bridge.
//
// The engine is the state machine at the core of the bridge: it evaluates
// each inbound messaging event against the user's current session state,
// may invoke the analytics client, persists the new state, and delivers an
// ordered list of outbound messages through the injected sender.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/obenan/reviewbridge/internal/analytics"
	"github.com/obenan/reviewbridge/internal/catalog"
	"github.com/obenan/reviewbridge/internal/models"
	"github.com/obenan/reviewbridge/internal/store"
)

// DefaultCooldown is the minimum elapsed time between accepted review
// questions for one session.
const DefaultCooldown = 5 * time.Second

// Sender delivers outbound messages. It is satisfied by
// messaging.Service; delivery results are logged but never inspected.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, url string) error
}

// AnalyticsClient answers review questions for a set of selections.
type AnalyticsClient interface {
	Ask(ctx context.Context, locations, sources []string, question string) (*analytics.Result, error)
}

// Opts holds configuration options for the engine.
type Opts struct {
	Cooldown time.Duration
	Clock    func() time.Time
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithCooldown overrides the review-question debounce window.
func WithCooldown(d time.Duration) Option {
	return func(o *Opts) { o.Cooldown = d }
}

// WithClock injects a time source (used in tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Engine routes inbound events through the conversation state machine.
type Engine struct {
	store     store.Store
	analytics AnalyticsClient
	catalog   *catalog.Catalog
	sender    Sender
	cooldown  time.Duration
	now       func() time.Time
}

// NewEngine creates a conversation engine with its collaborators.
func NewEngine(st store.Store, client AnalyticsClient, cat *catalog.Catalog, sender Sender, opts ...Option) *Engine {
	cfg := Opts{Cooldown: DefaultCooldown, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:     st,
		analytics: client,
		catalog:   cat,
		sender:    sender,
		cooldown:  cfg.Cooldown,
		now:       cfg.Clock,
	}
}

// outbound is one staged delivery call.
type outbound struct {
	content string
	kind    models.MessageKind
}

func textMsg(content string) outbound {
	return outbound{content: content, kind: models.MessageKindText}
}

func imageMsg(url string) outbound {
	return outbound{content: url, kind: models.MessageKindImage}
}

// HandleMessage processes one inbound event: it loads or creates the
// sender's session, applies the state machine, persists the result, and
// delivers the produced messages in order.
//
// Structured-selection payload identifiers travel through the same text
// pipeline as free text.
func (e *Engine) HandleMessage(ctx context.Context, msg models.IncomingMessage) error {
	if msg.From == "" {
		return models.ErrEmptyUserID
	}
	sess, err := e.store.LoadOrCreateSession(msg.From)
	if err != nil {
		slog.Error("Engine.HandleMessage: failed to load session", "error", err, "userID", msg.From)
		return err
	}

	text := strings.ToLower(strings.TrimSpace(msg.Body))
	now := e.now()
	sess.LastInteractionTime = now
	sess.RecordMessage(text, models.DirectionIncoming, now)
	slog.Debug("Engine.HandleMessage: routing input", "userID", sess.UserID, "state", sess.State, "kind", msg.Kind)

	// Global commands are recognized in every state.
	switch {
	case text == CommandReset:
		sess.State = models.StateAwaitingCommand
		return e.finish(ctx, sess, textMsg(MsgWelcome))
	case text == CommandHello || text == CommandHi:
		sess.State = models.StateAwaitingCommand
		sess.IsActive = true
		return e.finish(ctx, sess, textMsg(MsgGreeting))
	case text == CommandClear:
		sess.ClearSelections()
		sess.State = models.StateAwaitingCommand
		return e.finish(ctx, sess, textMsg(MsgCleared))
	case text == CommandBye:
		sess.End()
		return e.finish(ctx, sess, textMsg(MsgFarewell))
	case text == CommandHelp:
		// No state change.
		return e.finish(ctx, sess, textMsg(MsgHelp))
	case strings.HasPrefix(text, CommandOrgPrefix):
		if sess.State == models.StateAwaitingReviewQuestion {
			// Starting a new selection while a question was pending drops
			// the previous selections.
			sess.ClearSelections()
		}
		sess.State = models.StateSelectingLocations
		sess.IsActive = true
		return e.finish(ctx, sess, textMsg(LocationMenu(e.catalog.LocationNames())))
	}

	switch sess.State {
	case models.StateSelectingLocations:
		return e.handleLocationSelection(ctx, sess, text)
	case models.StateSelectingSources:
		return e.handleSourceSelection(ctx, sess, text)
	case models.StateAwaitingReviewQuestion, models.StateProcessingReview:
		return e.handleReviewQuestion(ctx, sess, text)
	default:
		return e.finish(ctx, sess, textMsg(MsgFallback))
	}
}

// handleLocationSelection parses a location choice. Invalid input re-shows
// the location menu without changing state.
func (e *Engine) handleLocationSelection(ctx context.Context, sess *models.Session, text string) error {
	names := e.catalog.LocationNames()
	indices, ok := parseSelection(text, len(names))
	if !ok {
		return e.finish(ctx, sess, textMsg(MsgInvalidLocations), textMsg(LocationMenu(names)))
	}
	sess.SelectedLocations = pick(names, indices)
	sess.State = models.StateSelectingSources
	slog.Info("Engine selected locations", "userID", sess.UserID, "count", len(sess.SelectedLocations))
	return e.finish(ctx, sess, textMsg(SourceMenu(e.catalog.SourceNames())))
}

// handleSourceSelection parses a source choice. On success the user gets a
// summary of both selections and the question prompt.
func (e *Engine) handleSourceSelection(ctx context.Context, sess *models.Session, text string) error {
	names := e.catalog.SourceNames()
	indices, ok := parseSelection(text, len(names))
	if !ok {
		return e.finish(ctx, sess, textMsg(MsgInvalidSources), textMsg(SourceMenu(names)))
	}
	sess.SelectedSources = pick(names, indices)
	sess.State = models.StateAwaitingReviewQuestion
	sess.IsActive = true
	slog.Info("Engine selected sources", "userID", sess.UserID, "count", len(sess.SelectedSources))
	return e.finish(ctx, sess,
		textMsg(SelectionSummary(sess.SelectedLocations, sess.SelectedSources)),
		textMsg(MsgQuestionPrompt))
}

// handleReviewQuestion runs the review-question flow: closing answers,
// cooldown debounce, preconditions, the analytics call, and the
// error-kind-to-state mapping.
func (e *Engine) handleReviewQuestion(ctx context.Context, sess *models.Session, text string) error {
	if text == answerNo || text == answerStop || text == CommandClear {
		sess.State = models.StateAwaitingCommand
		return e.finish(ctx, sess, textMsg(MsgClosing))
	}

	now := e.now()
	if !sess.CanProcess(now, e.cooldown) {
		// Duplicate webhook deliveries land here; drop silently.
		slog.Info("Engine ignoring review question during cooldown", "userID", sess.UserID)
		return e.store.SaveSession(*sess)
	}

	sess.State = models.StateProcessingReview
	sess.MarkProcessing(now)
	if err := e.store.SaveSession(*sess); err != nil {
		slog.Error("Engine failed to persist processing state", "error", err, "userID", sess.UserID)
		return err
	}

	if len(sess.SelectedLocations) == 0 {
		return e.failAnalysis(ctx, sess, analytics.KindMissingLocations)
	}
	if len(sess.SelectedSources) == 0 {
		return e.failAnalysis(ctx, sess, analytics.KindMissingSources)
	}

	// The working notice goes out before the provider call so the user is
	// not left staring at silence for up to the full provider timeout.
	e.emit(ctx, sess, textMsg(MsgWorking))

	result, err := e.analytics.Ask(ctx, sess.SelectedLocations, sess.SelectedSources, text)
	if err != nil {
		slog.Warn("Engine analytics call failed", "userID", sess.UserID, "kind", analytics.KindOf(err), "error", err)
		return e.failAnalysis(ctx, sess, analytics.KindOf(err))
	}

	msgs := []outbound{textMsg(AnalysisResult(result.Answer))}
	if result.HasChart {
		msgs = append(msgs, imageMsg(result.ChartURL))
	}
	msgs = append(msgs, textMsg(MsgContinuation))
	sess.State = models.StateAwaitingReviewQuestion
	slog.Info("Engine review question answered", "userID", sess.UserID, "has_chart", result.HasChart)
	return e.finish(ctx, sess, msgs...)
}

// failAnalysis maps an analytics error kind to the next state and the
// user-facing recovery messages.
func (e *Engine) failAnalysis(ctx context.Context, sess *models.Session, kind analytics.ErrorKind) error {
	body := analysisErrorText(kind)
	switch kind {
	case analytics.KindServiceUnreachable, analytics.KindServiceTimeout,
		analytics.KindServiceNotFound, analytics.KindServiceDenied:
		sess.State = models.StateAwaitingCommand
		return e.finish(ctx, sess, textMsg(body+MsgRestartHint))
	case analytics.KindMissingLocations:
		sess.State = models.StateSelectingLocations
		return e.finish(ctx, sess, textMsg(body), textMsg(LocationMenu(e.catalog.LocationNames())))
	case analytics.KindMissingSources:
		sess.State = models.StateSelectingSources
		return e.finish(ctx, sess, textMsg(body), textMsg(SourceMenu(e.catalog.SourceNames())))
	default:
		sess.State = models.StateAwaitingReviewQuestion
		return e.finish(ctx, sess, textMsg(body+MsgRetryHint))
	}
}

// finish records the staged messages in the session log, persists the new
// state, and then delivers the messages in order. Delivery failures are
// logged only; delivery reliability is out of scope.
func (e *Engine) finish(ctx context.Context, sess *models.Session, msgs ...outbound) error {
	now := e.now()
	for _, m := range msgs {
		sess.RecordMessage(m.content, models.DirectionOutgoing, now)
	}
	if err := e.store.SaveSession(*sess); err != nil {
		slog.Error("Engine failed to persist session", "error", err, "userID", sess.UserID, "state", sess.State)
		return err
	}
	for _, m := range msgs {
		e.send(ctx, sess.UserID, m)
	}
	return nil
}

// emit records and delivers one message immediately, without persisting.
func (e *Engine) emit(ctx context.Context, sess *models.Session, m outbound) {
	sess.RecordMessage(m.content, models.DirectionOutgoing, e.now())
	e.send(ctx, sess.UserID, m)
}

func (e *Engine) send(ctx context.Context, to string, m outbound) {
	var err error
	if m.kind == models.MessageKindImage {
		err = e.sender.SendImage(ctx, to, m.content)
	} else {
		err = e.sender.SendMessage(ctx, to, m.content)
	}
	if err != nil {
		slog.Error("Engine failed to deliver message", "error", err, "to", to, "kind", m.kind)
	}
}
