// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/metrics"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/storage"
)

// ErrBusy is returned by Send and session switches while a reply streams.
var ErrBusy = errors.New("a reply is still streaming")

// Client is the part of the DeepGate client the orchestrator drives.
type Client interface {
	FetchAvailableModels(ctx context.Context, env deepgate.Environment) ([]deepgate.LanguageModel, error)
	LoadModel(ctx context.Context, env deepgate.Environment, name string, onLoadingChanged func(loading bool)) error
	StreamCompletion(ctx context.Context, env deepgate.Environment, chat deepgate.ChatCompletion, onToken deepgate.TokenFunc) (*deepgate.StreamResult, error)
}

// Options configures an Orchestrator. Client is required.
type Options struct {
	Client   Client
	Store    storage.HistoryStore // default: in-memory
	Prompter Prompter             // default: NeverRetry

	// Dispatcher owns session state. When nil the orchestrator starts and
	// closes its own.
	Dispatcher *Dispatcher

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics

	Environment  deepgate.Environment // default: host
	SystemPrompt string               // default: model.DefaultSystemPrompt
	DefaultModel string

	// OnChange receives every session change on the dispatcher goroutine.
	OnChange model.Listener
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator wires user input to a conversation session, streams replies
// from the server, persists completed turns and asks before retrying.
//
// The session and the model list are owned by the dispatcher; every read
// and write goes through it.
type Orchestrator struct {
	client   Client
	store    storage.HistoryStore
	prompter Prompter
	disp     *Dispatcher
	ownsDisp bool
	log      zerolog.Logger
	metrics  *metrics.Metrics

	env          deepgate.Environment
	systemPrompt string
	onChange     model.Listener

	busy atomic.Bool

	// dispatcher-owned
	session     *model.Conversation
	unsubscribe func()
	models      []deepgate.LanguageModel
}

// New creates an orchestrator with a fresh chat session.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("chat: client is required")
	}

	o := &Orchestrator{
		client:       opts.Client,
		store:        opts.Store,
		prompter:     opts.Prompter,
		disp:         opts.Dispatcher,
		metrics:      opts.Metrics,
		env:          opts.Environment,
		systemPrompt: opts.SystemPrompt,
		onChange:     opts.OnChange,
		log:          zerolog.Nop(),
	}
	if opts.Logger != nil {
		o.log = *opts.Logger
	}
	if o.store == nil {
		o.store = storage.NewMemoryStore()
	}
	if o.prompter == nil {
		o.prompter = NeverRetry
	}
	if o.env == "" {
		o.env = deepgate.EnvHost
	}
	if !o.env.Valid() {
		return nil, fmt.Errorf("chat: invalid environment %q", o.env)
	}
	if strings.TrimSpace(o.systemPrompt) == "" {
		o.systemPrompt = model.DefaultSystemPrompt
	}
	if o.disp == nil {
		o.disp = NewDispatcher(o.log)
		o.ownsDisp = true
	}

	conv := model.NewConversation(o.systemPrompt)
	conv.SetModel(opts.DefaultModel)
	if err := o.disp.Do(context.Background(), func() { o.attach(conv) }); err != nil {
		return nil, err
	}
	return o, nil
}

// attach makes conv the current session. Dispatcher only.
func (o *Orchestrator) attach(conv *model.Conversation) {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	o.session = conv
	if o.onChange != nil {
		o.unsubscribe = conv.Subscribe(o.onChange)
	}
	o.markRunning(conv.Model)
}

// Environment returns the environment segment requests go to.
func (o *Orchestrator) Environment() deepgate.Environment {
	return o.env
}

// Ping checks that the server answers. Clients without a health check are
// assumed reachable.
func (o *Orchestrator) Ping(ctx context.Context) error {
	p, ok := o.client.(interface {
		Ping(ctx context.Context, env deepgate.Environment) error
	})
	if !ok {
		return nil
	}
	return p.Ping(ctx, o.env)
}

// IsBusy reports whether a reply is streaming.
func (o *Orchestrator) IsBusy() bool {
	return o.busy.Load()
}

// Session returns a snapshot of the current session.
func (o *Orchestrator) Session(ctx context.Context) (*model.Conversation, error) {
	var snap *model.Conversation
	if err := o.disp.Do(ctx, func() { snap = o.session.Clone() }); err != nil {
		return nil, err
	}
	return snap, nil
}

// NewSession starts an empty session of the given kind. The selected model
// carries over.
func (o *Orchestrator) NewSession(ctx context.Context, kind model.Kind) (*model.Conversation, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	var snap *model.Conversation
	err := o.disp.Do(ctx, func() {
		conv := model.NewConversation(o.systemPrompt)
		conv.Kind = kind
		conv.SetModel(o.session.Model)
		o.attach(conv)
		snap = conv.Clone()
	})
	if err != nil {
		return nil, err
	}
	o.log.Debug().Str("session", snap.ID).Str("kind", string(kind)).Msg("new session")
	return snap, nil
}

// Resume loads a stored session and makes it current.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*model.Conversation, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	conv, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	var snap *model.Conversation
	if err := o.disp.Do(ctx, func() {
		o.attach(conv)
		snap = conv.Clone()
	}); err != nil {
		return nil, err
	}
	o.log.Debug().Str("session", id).Int("messages", snap.MessageCount()).Msg("session resumed")
	return snap, nil
}

// SetModel selects a model for the current session without loading it.
func (o *Orchestrator) SetModel(ctx context.Context, name string) error {
	return o.disp.Do(ctx, func() {
		o.session.SetModel(name)
		o.markRunning(o.session.Model)
	})
}

// History lists the stored sessions in chronological order.
func (o *Orchestrator) History(ctx context.Context) ([]storage.Summary, error) {
	return o.store.ListAll(ctx)
}

// =============================================================================
// SEND
// =============================================================================

// Send appends text as a user message and streams the assistant reply into
// the session. Each streamed update is applied on the dispatcher.
//
// On success the reply is completed and the session persisted. On failure
// the prompter decides whether to retry with the same payload and the same
// pending reply; if it declines, the stream error is returned and the partial
// reply stays in the session without being persisted.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	var (
		session   *model.Conversation
		reply     *model.Message
		payload   deepgate.ChatCompletion
		appendErr error
	)
	// Wait for the setup even if ctx ends, so a caller that gave up never
	// leaves a queued turn behind; the closure itself skips a dead ctx.
	err := o.disp.Do(context.WithoutCancel(ctx), func() {
		if appendErr = ctx.Err(); appendErr != nil {
			return
		}
		session = o.session
		if _, appendErr = session.AppendUserMessage(text); appendErr != nil {
			return
		}
		reply = session.BeginAssistantReply()
		payload = session.ToChatCompletion()
	})
	if err != nil {
		return err
	}
	if appendErr != nil {
		return appendErr
	}

	log := o.log.With().Str("session", session.ID).Str("model", payload.Model).Logger()

	for {
		start := time.Now()
		result, streamErr := o.client.StreamCompletion(ctx, o.env, payload, func(accumulated string) {
			_ = o.disp.Dispatch(func() {
				_ = session.UpdateAssistantReply(reply, accumulated)
			})
		})

		tokens := 0
		if result != nil {
			tokens = result.Tokens
		}
		o.metrics.RecordTurn(tokens, time.Since(start), streamErr)

		if streamErr == nil {
			return o.finishTurn(ctx, log, session, reply, result)
		}

		log.Warn().Err(streamErr).Int("tokens", tokens).Msg("chat turn failed")
		// Apply queued token updates so the partial reply is visible.
		_ = o.disp.Do(context.WithoutCancel(ctx), func() {})
		if ctx.Err() != nil || deepgate.IsInvalidArgument(streamErr) {
			return streamErr
		}
		if !o.prompter.ConfirmRetry(ctx, RetryTitle, RetryMessage) {
			return streamErr
		}

		o.metrics.RecordRetry("chat")
		log.Info().Msg("retrying chat turn")
		_ = o.disp.Dispatch(func() {
			_ = session.UpdateAssistantReply(reply, "")
		})
	}
}

// finishTurn completes the reply after every queued token update and
// persists a snapshot.
func (o *Orchestrator) finishTurn(ctx context.Context, log zerolog.Logger, session *model.Conversation, reply *model.Message, result *deepgate.StreamResult) error {
	var (
		snapshot    *model.Conversation
		completeErr error
	)
	// The reply is complete even if the caller gave up in the meantime.
	err := o.disp.Do(context.WithoutCancel(ctx), func() {
		if completeErr = session.UpdateAssistantReply(reply, result.Content); completeErr != nil {
			return
		}
		if completeErr = session.CompleteAssistantReply(reply); completeErr != nil {
			return
		}
		snapshot = persistable(session)
	})
	if err != nil {
		return err
	}
	if completeErr != nil {
		return fmt.Errorf("complete reply: %w", completeErr)
	}

	if err := o.store.Upsert(context.WithoutCancel(ctx), snapshot); err != nil {
		log.Error().Err(err).Msg("failed to save session")
		return fmt.Errorf("save session: %w", err)
	}
	o.metrics.RecordSave()

	log.Info().
		Int("tokens", result.Tokens).
		Bool("thought", result.Thought).
		Dur("duration_ms", result.Elapsed).
		Msg("chat turn finished")
	return nil
}

// persistable clones conv without abandoned partial replies.
func persistable(conv *model.Conversation) *model.Conversation {
	snap := conv.Clone()
	kept := snap.Messages[:0]
	for _, msg := range snap.Messages {
		if !msg.IsPending() {
			kept = append(kept, msg)
		}
	}
	snap.Messages = kept
	return snap
}

// =============================================================================
// MODELS
// =============================================================================

// RefreshModels fetches the server's models. On failure the prompter decides
// whether to try again.
func (o *Orchestrator) RefreshModels(ctx context.Context) ([]deepgate.LanguageModel, error) {
	for {
		list, err := o.client.FetchAvailableModels(ctx, o.env)
		o.metrics.RecordModelFetch(err)
		if err == nil {
			var models []deepgate.LanguageModel
			if err := o.disp.Do(ctx, func() {
				o.models = list
				o.markRunning(o.session.Model)
				models = o.copyModels()
			}); err != nil {
				return nil, err
			}
			o.log.Debug().Int("count", len(models)).Msg("models refreshed")
			return models, nil
		}

		o.log.Warn().Err(err).Msg("fetch models failed")
		if ctx.Err() != nil || !o.prompter.ConfirmRetry(ctx, RetryTitle, RetryMessage) {
			return nil, err
		}
		o.metrics.RecordRetry("fetch_models")
	}
}

// Models returns the last fetched model list with its loading flags.
func (o *Orchestrator) Models(ctx context.Context) ([]deepgate.LanguageModel, error) {
	var models []deepgate.LanguageModel
	if err := o.disp.Do(ctx, func() { models = o.copyModels() }); err != nil {
		return nil, err
	}
	return models, nil
}

// LoadModel asks the server to load name. While the request runs the model's
// descriptor reports IsLoading. On success the model becomes the session's
// model and the only running one.
func (o *Orchestrator) LoadModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	start := time.Now()

	err := o.client.LoadModel(ctx, o.env, name, func(loading bool) {
		_ = o.disp.Dispatch(func() { o.setLoading(name, loading) })
	})
	o.metrics.RecordModelLoad(err)
	if err != nil {
		o.log.Warn().Err(err).Str("model", name).Msg("model load failed")
		return err
	}

	if err := o.disp.Do(context.WithoutCancel(ctx), func() {
		o.session.SetModel(name)
		o.markRunning(name)
	}); err != nil {
		return err
	}
	o.log.Info().Str("model", name).Dur("duration_ms", time.Since(start)).Msg("model loaded")
	return nil
}

// setLoading flags the named descriptor. Dispatcher only.
func (o *Orchestrator) setLoading(name string, loading bool) {
	for i := range o.models {
		if o.models[i].Name == name {
			o.models[i].IsLoading = loading
		}
	}
}

// markRunning flags name as the only running model. Dispatcher only.
func (o *Orchestrator) markRunning(name string) {
	for i := range o.models {
		o.models[i].IsRunning = name != "" && o.models[i].Name == name
	}
}

func (o *Orchestrator) copyModels() []deepgate.LanguageModel {
	models := make([]deepgate.LanguageModel, len(o.models))
	copy(models, o.models)
	return models
}

// Close stops an owned dispatcher. The store belongs to the caller.
func (o *Orchestrator) Close() {
	if o.ownsDisp {
		o.disp.Close()
	}
}
