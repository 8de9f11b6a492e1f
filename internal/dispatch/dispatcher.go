// Package dispatch orchestrates one inbound chat event end-to-end:
// dedup screening, trigger gating, conflict scoring, mediation escalation,
// generation, and paced outbound delivery.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nosdois/duet/internal/bus"
	"github.com/nosdois/duet/internal/mediation"
	"github.com/nosdois/duet/internal/memory"
	"github.com/nosdois/duet/internal/providers"
	"github.com/nosdois/duet/internal/safety"
	"github.com/nosdois/duet/internal/store"
	"github.com/nosdois/duet/internal/trigger"
)

// assistantName labels the assistant's turns in conversation memory.
const assistantName = "NósAi"

// Fixed user-visible replies for generation failures and side-channel
// commands.
const (
	fallbackSensitive = "Sinto que tocamos em um ponto muito sensível. Que tal respirarmos fundo e tentarmos falar sobre como você se *sente* em vez do que aconteceu? 🌿"
	fallbackEmpty     = "Fiquei em silêncio refletindo... (Erro de resposta vazia). Pode repetir?"
	fallbackTechnical = "Minha conexão com a sabedoria universal falhou (erro técnico). Tente de novo em 1 minuto! 🧘‍♂️"
	resetAck          = "Prontinho! Limpei nossa conversa e começamos do zero. 🌱"
)

// Sender delivers one outbound segment. Implemented by evolution.Client.
type Sender interface {
	SendText(ctx context.Context, chatID, text string, mentions []string) error
}

// CoupleDirectory looks up the couple bound to a conversation. Implemented
// by store.Store.
type CoupleDirectory interface {
	LookupCouple(ctx context.Context, groupJID string) (*store.Couple, error)
}

// MediationLog reads and records per-conversation mediation state.
// Implemented by store.Store.
type MediationLog interface {
	MediationState(ctx context.Context, chatID string) (time.Time, int, error)
	RecordMediation(ctx context.Context, chatID string, at time.Time) error
}

// Config tunes the dispatcher.
type Config struct {
	MediationCooldown time.Duration
	MaxSegmentChars   int
	MinPacingDelay    time.Duration
	MaxPacingDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MediationCooldown <= 0 {
		c.MediationCooldown = mediation.DefaultCooldown
	}
	if c.MaxSegmentChars <= 0 {
		c.MaxSegmentChars = 350
	}
	if c.MinPacingDelay <= 0 {
		c.MinPacingDelay = 2 * time.Second
	}
	if c.MaxPacingDelay <= 0 {
		c.MaxPacingDelay = 8 * time.Second
	}
	return c
}

// Dispatcher routes inbound events through the decision engine. One
// Dispatcher serves all conversations; per-chat state mutations are
// serialized with a keyed lock.
type Dispatcher struct {
	cfgMu      sync.RWMutex
	cfg        Config
	dedupe     *bus.Deduplicator
	memory     *memory.Manager
	trigger    *trigger.Evaluator
	activity   *trigger.ActivityWindow
	generator  providers.Generator
	sender     Sender
	couples    CoupleDirectory
	mediations MediationLog
	tracer     trace.Tracer

	chatLocks sync.Map // chatID → *sync.Mutex

	now func() time.Time // injectable for tests
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Dedupe     *bus.Deduplicator
	Memory     *memory.Manager
	Trigger    *trigger.Evaluator
	Activity   *trigger.ActivityWindow
	Generator  providers.Generator
	Sender     Sender
	Couples    CoupleDirectory
	Mediations MediationLog
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg.withDefaults(),
		dedupe:     deps.Dedupe,
		memory:     deps.Memory,
		trigger:    deps.Trigger,
		activity:   deps.Activity,
		generator:  deps.Generator,
		sender:     deps.Sender,
		couples:    deps.Couples,
		mediations: deps.Mediations,
		tracer:     otel.Tracer("duet/dispatch"),
		now:        time.Now,
	}
}

// Tune swaps the runtime tunables. Safe to call while dispatches are in
// flight; each dispatch snapshots the config once on entry.
func (d *Dispatcher) Tune(cfg Config) {
	d.cfgMu.Lock()
	d.cfg = cfg.withDefaults()
	d.cfgMu.Unlock()
}

func (d *Dispatcher) tuning() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// Screen performs the synchronous rejections that belong in the webhook
// response path: self-authored events and duplicates. Returns empty status
// when the event should proceed to Process.
func (d *Dispatcher) Screen(msg bus.InboundMessage) bus.Status {
	if msg.FromMe {
		return bus.StatusIgnoredSelf
	}
	if msg.ID != "" && d.dedupe.IsDuplicate(msg.ID) {
		slog.Info("duplicate message skipped", "message_id", msg.ID)
		return bus.StatusDuplicate
	}
	return ""
}

// Dispatch runs Screen and Process back to back. Used by tests and by
// callers that don't need the fire-and-forget split.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage) bus.Status {
	if status := d.Screen(msg); status != "" {
		return status
	}
	return d.Process(ctx, msg)
}

// Process handles everything after screening: trigger gating, conflict
// analysis, mediation policy, generation, and delivery. Intended to run
// outside the webhook response path. A missing conversation identifier is a
// programming-invariant violation fatal to this dispatch only.
func (d *Dispatcher) Process(ctx context.Context, msg bus.InboundMessage) bus.Status {
	ctx, span := d.tracer.Start(ctx, "dispatch.process",
		trace.WithAttributes(
			attribute.String("chat_id", msg.ChatID),
			attribute.Bool("group", msg.IsGroup()),
		))
	defer span.End()

	log := slog.With("chat_id", msg.ChatID, "sender", msg.SenderName)

	if msg.ChatID == "" {
		log.Error("dispatch dropped: no conversation identifier", "message_id", msg.ID)
		return bus.StatusIgnoredNoText
	}

	if msg.Kind == bus.KindOther || msg.Text == "" {
		log.Info("ignored message: no text")
		return bus.StatusIgnoredNoText
	}

	// Serialize per conversation: memory, activity window, and mediation
	// state are read-modify-write below.
	mu := d.lockFor(msg.ChatID)
	mu.Lock()
	defer mu.Unlock()

	now := d.now()

	shouldRespond, reason := d.trigger.Evaluate(
		msg.Text, msg.IsGroup(), msg.Mentions, d.activity.LastReply(msg.ChatID), now)

	// Reset directive: side-channel command, no generation.
	if trigger.IsResetCommand(msg.Text) {
		d.memory.Clear(msg.ChatID)
		if err := d.sender.SendText(ctx, msg.ChatID, resetAck, nil); err != nil {
			log.Error("reset ack delivery failed", "error", err)
		}
		log.Info("conversation memory cleared")
		return bus.StatusOK
	}

	// Conflict + mediation decision. Manual commands and a hot conflict
	// score can force a response even when no trigger fired.
	manual := mediation.IsManualTrigger(msg.Text)
	score := mediation.Score(msg.Text)

	// Without cooldown state the automatic path fails closed; manual commands
	// still escalate.
	mediate := manual
	lastMediation, _, err := d.mediations.MediationState(ctx, msg.ChatID)
	if err != nil {
		log.Warn("mediation state unavailable, automatic mediation disabled", "error", err)
	} else {
		mediate = mediation.ShouldMediate(score, lastMediation, manual, now, d.tuning().MediationCooldown)
	}

	if !shouldRespond && !mediate {
		log.Debug("no trigger fired", "score", score)
		return bus.StatusIgnoredNoTrigger
	}

	// Safety screen runs before generation; blocked text never enters
	// conversation memory.
	if safety.IsUnsafe(msg.Text) {
		if err := d.sender.SendText(ctx, msg.ChatID, safety.EmergencyMessage, nil); err != nil {
			log.Error("safety reply delivery failed", "error", err)
		}
		return bus.StatusBlockedSafety
	}

	couple := d.lookupCouple(ctx, msg.ChatID, log)

	// Record the mediation event before generating so a concurrent dispatch
	// entering after we release the lock sees the fresh cooldown.
	if mediate {
		if err := d.mediations.RecordMediation(ctx, msg.ChatID, now); err != nil {
			log.Error("failed to record mediation event", "error", err)
		}
		log.Info("mediation triggered", "score", score, "manual", manual)
	} else {
		log.Info("responding", "trigger", string(reason), "score", score)
	}

	reply := d.generate(ctx, msg, couple, mediate)

	d.memory.AddTurn(msg.ChatID, memory.RoleUser, msg.SenderName, msg.Text)
	d.memory.AddTurn(msg.ChatID, memory.RoleAssistant, assistantName, reply)

	if !d.deliver(ctx, msg.ChatID, reply, couple, log) {
		return bus.StatusOK
	}

	d.activity.MarkReply(msg.ChatID, d.now())
	return bus.StatusOK
}

// generate invokes the generator with either the raw text or the mediation
// instruction payload, mapping failures to fixed fallback replies.
func (d *Dispatcher) generate(ctx context.Context, msg bus.InboundMessage, couple *store.Couple, mediate bool) string {
	ctx, span := d.tracer.Start(ctx, "dispatch.generate",
		trace.WithAttributes(attribute.Bool("mediation", mediate)))
	defer span.End()

	var req providers.Request
	if mediate {
		nameA, nameB := partnerNames(msg, couple)
		// The triggering message is not in memory yet; append it so the
		// instruction always shows what sparked the escalation.
		turns := append(d.memory.Recent(msg.ChatID), memory.Turn{
			Role:    memory.RoleUser,
			Speaker: msg.SenderName,
			Text:    msg.Text,
		})
		req = providers.Request{
			Prompt: mediation.BuildPrompt(turns, nameA, nameB),
		}
	} else {
		req = providers.Request{
			Prompt:  msg.Text,
			Speaker: msg.SenderName,
			History: d.memory.Formatted(msg.ChatID),
		}
	}

	reply, err := d.generator.Generate(ctx, req)
	if err == nil {
		return reply
	}

	span.RecordError(err)
	switch {
	case errors.Is(err, providers.ErrSafetyBlocked):
		slog.Warn("generation safety block", "chat_id", msg.ChatID)
		return fallbackSensitive
	case errors.Is(err, providers.ErrEmptyResponse):
		slog.Warn("generation empty response", "chat_id", msg.ChatID)
		return fallbackEmpty
	default:
		slog.Error("generation failed", "chat_id", msg.ChatID, "error", err)
		return fallbackTechnical
	}
}

// deliver splits the reply into segments and sends them strictly in order,
// pacing every segment after the first. Returns false when delivery was
// aborted before completing.
func (d *Dispatcher) deliver(ctx context.Context, chatID, reply string, couple *store.Couple, log *slog.Logger) bool {
	ctx, span := d.tracer.Start(ctx, "dispatch.deliver")
	defer span.End()

	cfg := d.tuning()
	segments := SplitSegments(reply, cfg.MaxSegmentChars)
	span.SetAttributes(attribute.Int("segments", len(segments)))

	for i, seg := range segments {
		if i > 0 {
			delay := pacingDelay(seg, cfg.MinPacingDelay, cfg.MaxPacingDelay)
			select {
			case <-ctx.Done():
				log.Info("delivery cancelled mid-sequence", "sent", i, "total", len(segments))
				return false
			case <-time.After(delay):
			}
		}

		text, mentions := applyMentions(seg, couple)
		if err := d.sender.SendText(ctx, chatID, text, mentions); err != nil {
			span.RecordError(err)
			log.Error("segment delivery failed", "segment", i, "error", err)
			return false
		}
	}

	return len(segments) > 0
}

func (d *Dispatcher) lookupCouple(ctx context.Context, chatID string, log *slog.Logger) *store.Couple {
	if d.couples == nil {
		return nil
	}
	couple, err := d.couples.LookupCouple(ctx, chatID)
	if err != nil {
		log.Warn("couple lookup failed", "error", err)
		return nil
	}
	return couple
}

// partnerNames resolves the two party names for the mediation prompt,
// falling back to the sender plus a generic label when no couple is
// registered.
func partnerNames(msg bus.InboundMessage, couple *store.Couple) (string, string) {
	if couple != nil {
		return couple.UserName, couple.PartnerName
	}
	name := msg.SenderName
	if name == "" {
		name = "Parceiro(a) 1"
	}
	return name, "Parceiro(a) 2"
}

func (d *Dispatcher) lockFor(chatID string) *sync.Mutex {
	v, _ := d.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
