// Package router turns transport updates into command and callback handler
// calls, running them on a bounded worker pool.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gstaldergeist/internal/runtime/supervisor"
	kit "gstaldergeist/internal/transport"
	logx "gstaldergeist/pkg/logx"
	"gstaldergeist/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessMembers allows household members and owners.
	AccessMembers
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string
	ReqID   string
	Logger  logx.Logger

	// Message is the message a callback button belongs to.
	Message kit.MessageRef
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, a kit.Adapter, text string, opt *kit.SendOptions) error {
	_, err := a.SendText(ctx, r.Chat, text, opt)
	return err
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	workers int

	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]CallbackRoute
	owners    []int64
	members   []int64

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, workers int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	return &Router{
		log:       log,
		adapter:   adapter,
		workers:   workers,
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		jobs:      make(chan func(), 256),
	}
}

// SetAccess replaces the owner and member lists.
func (r *Router) SetAccess(owners, members []int64) {
	r.mu.Lock()
	r.owners = append([]int64(nil), owners...)
	r.members = append([]int64(nil), members...)
	r.mu.Unlock()
}

func (r *Router) allowed(a Access, from int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch a {
	case AccessEveryone:
		return true
	case AccessMembers:
		return contains(r.owners, from) || contains(r.members, from)
	default:
		return contains(r.owners, from)
	}
}

// SetRegistry installs commands and callbacks and publishes the command menu.
// A /help command listing the others is always added.
func (r *Router) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "list commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.adapter, r.helpText(), &kit.SendOptions{ParseMode: "HTML"})
		},
	})

	byName := map[string]Command{}
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = c
				}
			}
		}
	}
	byData := map[string]CallbackRoute{}
	for _, cb := range cbs {
		if cb.Scope == "" || cb.Action == "" || cb.Handle == nil {
			continue
		}
		byData[cb.Scope+":"+cb.Action] = cb
	}

	r.mu.Lock()
	r.commands = byName
	r.callbacks = byData
	r.mu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(cmds)
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("command menu update failed", logx.Err(err))
			}
		}()
	}
}

func (r *Router) helpText() string {
	r.mu.RLock()
	seen := map[string]bool{}
	var lines []string
	for _, c := range r.commands {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		lines = append(lines, "/"+c.Name+" "+tgui.Esc(c.Description).String())
	}
	r.mu.RUnlock()
	sort.Strings(lines)
	return tgui.B("Commands").String() + "\n" + strings.Join(lines, "\n")
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "router"))),
		supervisor.WithCancelOnError(false),
	)
	r.setRunning(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		r.setRunning(sup, false)
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in router job", logx.Int("worker", worker), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) setRunning(sup *supervisor.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// enqueue returns false when the pool is full or stopped.
func (r *Router) enqueue(fn func()) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return false
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	parts := tokenize(msg.Text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	chat := msg.Target()

	r.mu.RLock()
	cmd, ok := r.commands[strings.ToLower(word)]
	r.mu.RUnlock()
	if !ok {
		_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if !r.allowed(cmd.Access, msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, "Sorry, this command is not available to you.", nil)
		return
	}

	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args = parts[1:]
	final := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(cmd.Timeout))
	if !r.enqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, try again.", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	r.mu.RLock()
	route, ok := r.callbacks[scope+":"+action]
	r.mu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !r.allowed(route.Access, cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	chat := cb.Target()
	req := r.newRequest(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.Payload = payload
	req.Message = cb.Ref()

	final := Chain(route.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(route.Timeout))
	if !r.enqueue(func() {
		_ = final(ctx, req)
		// Stops the client's loading indicator.
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
