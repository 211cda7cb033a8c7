package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/eventbus"
	kit "gstaldergeist/internal/transport"
	logx "gstaldergeist/pkg/logx"
	"gstaldergeist/pkg/tgui"
)

var ErrNoAdapter = errors.New("notifier has no adapter")

const historySize = 100

// Service implements duty.Notifier. It is safe for concurrent use.
type Service struct {
	adapter   kit.Adapter
	msgs      *duty.Messages
	household kit.ChatTarget
	cfg       Config
	limiter   *rate.Limiter
	log       logx.Logger
	bus       eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

var _ duty.Notifier = (*Service)(nil)

func New(cfg Config, adapter kit.Adapter, msgs *duty.Messages, household kit.ChatTarget, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if msgs == nil {
		msgs = duty.NewMessages("en")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter:   adapter,
		msgs:      msgs,
		household: household,
		cfg:       cfg,
		// Burst equals the rate so short spikes are not delayed.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
		bus:     bus,
	}
}

func (s *Service) PromptMember(ctx context.Context, member duty.MemberID, cycle, text string, actions []duty.Action) error {
	opt := &kit.SendOptions{ReplyMarkupAdapter: s.keyboard(cycle, actions)}
	_, err := s.Send(ctx, "prompt", kit.ChatTarget{ChatID: int64(member)}, text, opt)
	return err
}

func (s *Service) Tell(ctx context.Context, member duty.MemberID, text string) error {
	_, err := s.Send(ctx, "tell", kit.ChatTarget{ChatID: int64(member)}, text, nil)
	return err
}

func (s *Service) Broadcast(ctx context.Context, a duty.Audience, text string) error {
	_, err := s.Send(ctx, "broadcast", s.target(a), text, nil)
	return err
}

func (s *Service) Shame(ctx context.Context, a duty.Audience, text string) error {
	_, err := s.Send(ctx, "shame", s.target(a), text, nil)
	return err
}

func (s *Service) target(a duty.Audience) kit.ChatTarget {
	if int64(a) == s.household.ChatID {
		return s.household
	}
	return kit.ChatTarget{ChatID: int64(a)}
}

// Send delivers text with rate limiting and retries. kind labels history and events.
func (s *Service) Send(ctx context.Context, kind string, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if s.adapter == nil {
		return kit.MessageRef{}, ErrNoAdapter
	}
	attempts := 1 + s.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return kit.MessageRef{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		ref, err := s.adapter.SendText(callCtx, to, text, opt)
		cancel()
		if err == nil {
			s.appendHistory(HistoryItem{At: time.Now(), ChatID: to.ChatID, Kind: kind, Text: text})
			s.publish("notifier.sent", kind, to.ChatID, nil)
			return ref, nil
		}
		lastErr = err
		s.log.Debug("send failed",
			logx.String("kind", kind),
			logx.Int64("chat_id", to.ChatID),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err),
		)
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return kit.MessageRef{}, ctx.Err()
		}
	}
	s.publish("notifier.failed", kind, to.ChatID, lastErr)
	return kit.MessageRef{}, fmt.Errorf("send %s to %d after %d attempts: %w", kind, to.ChatID, attempts, lastErr)
}

// History returns the most recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(h HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ, kind string, chatID int64, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{Kind: kind, ChatID: chatID, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// keyboard renders prompt actions as one row of inline buttons. A button whose
// callback data exceeds the Telegram limit is dropped.
func (s *Service) keyboard(cycle string, actions []duty.Action) *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, len(actions))
	for _, a := range actions {
		data := ActionData(a, cycle)
		if err := tgui.CheckData(data); err != nil {
			s.log.Error("prompt button dropped", logx.String("action", string(a)), logx.Int("len", len(data)), logx.Err(err))
			continue
		}
		btns = append(btns, tgui.Btn(s.msgs.Button(a), data))
	}
	if len(btns) == 0 {
		return nil
	}
	return tgui.NewInline().Row(btns...).Markup()
}

// ActionData returns the callback data for a prompt action. Duty answers
// carry the cycle so a press can be matched to its prompt.
func ActionData(a duty.Action, cycle string) string {
	if a == duty.ActionRequestSupplies {
		return tgui.Data(ScopeBags, BagsRequest, "")
	}
	return tgui.Data(ScopeDuty, string(a), cycle)
}

// SupplyKeyboard asks whether a bag request should really be sent.
func SupplyKeyboard(m *duty.Messages) *tele.ReplyMarkup {
	return tgui.Confirm(
		tgui.Btn(m.BagsSure(), tgui.Data(ScopeBags, BagsSure, "")),
		tgui.Btn(m.BagsNoNeed(), tgui.Data(ScopeBags, BagsEnough, "")),
	)
}

// retryDelay is base*2^(attempt-1) capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
