// Package statusapi serves a small read-only HTTP view of the duty state.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/runtime/supervisor"
	"gstaldergeist/internal/storage"
	logx "gstaldergeist/pkg/logx"
)

type StateSource interface {
	Snapshot() duty.TaskState
}

type AuditSource interface {
	RecentDutyEvents(ctx context.Context, limit int) ([]storage.DutyEvent, error)
}

// HealthSource reports the runtime state of supervised goroutines.
type HealthSource interface {
	Counters() supervisor.Counters
}

type Deps struct {
	State    StateSource
	Schedule duty.Aggregator
	Audit    AuditSource  // optional
	Health   HealthSource // optional
	Location *time.Location
	Now      func() time.Time
}

type stateResponse struct {
	Phase         string    `json:"phase"`
	NextTrigger   time.Time `json:"next_trigger"`
	RemindersSent int       `json:"reminders_sent"`
	Cycle         string    `json:"cycle,omitempty"`
	Member        int64     `json:"member,omitempty"`
	MemberName    string    `json:"member_name,omitempty"`
	Items         []string  `json:"items,omitempty"`
	DueDate       string    `json:"due_date,omitempty"`
}

type dayResponse struct {
	Date  string   `json:"date"`
	Items []string `json:"items"`
}

type scheduleResponse struct {
	Current int64         `json:"current"`
	Next    int64         `json:"next"`
	Days    []dayResponse `json:"days"`
}

type eventResponse struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Cycle  string    `json:"cycle,omitempty"`
	Phase  string    `json:"phase"`
	Member int64     `json:"member,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Register wires all routes on e.
func Register(e *echo.Echo, d Deps, log logx.Logger) {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	e.GET("/healthz", healthz(d.Health))
	e.GET("/api/state", getState(d))
	e.GET("/api/schedule", getSchedule(d, log))
	e.GET("/api/events", getEvents(d, log))
}

type healthResponse struct {
	Status string `json:"status"`
	supervisor.Counters
}

// healthz answers 503 once a supervised loop has recorded a failure.
func healthz(h HealthSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h == nil {
			return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
		}
		resp := healthResponse{Status: "ok", Counters: h.Counters()}
		if resp.LastError != "" {
			resp.Status = "degraded"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getState(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := d.State.Snapshot()
		resp := stateResponse{
			Phase:         st.Phase.String(),
			NextTrigger:   st.NextTrigger,
			RemindersSent: st.RemindersSent,
			Cycle:         st.Cycle,
			Member:        int64(st.Member.ID),
			MemberName:    st.Member.Name,
			Items:         itemStrings(st.Items),
		}
		if !st.DueDate.IsZero() {
			resp.DueDate = st.DueDate.String()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// getSchedule fetches ?days= (default 7, max 31) days starting today.
func getSchedule(d Deps, log logx.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := 7
		if raw := c.QueryParam("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 31 {
				return c.String(http.StatusBadRequest, "invalid days")
			}
			days = n
		}
		tomorrow := collection.DateOf(d.Now().In(d.Location)).AddDays(1)
		sched, err := d.Schedule.Fetch(c.Request().Context(), tomorrow, tomorrow.AddDays(days-1))
		if err != nil {
			log.Warn("schedule request failed", logx.Err(err))
			if errors.Is(err, duty.ErrTransientData) {
				return c.String(http.StatusServiceUnavailable, "collection data unavailable")
			}
			return c.String(http.StatusInternalServerError, "internal error")
		}
		resp := scheduleResponse{Current: int64(sched.Current.ID), Next: int64(sched.Next.ID), Days: []dayResponse{}}
		for _, day := range sched.Days() {
			resp.Days = append(resp.Days, dayResponse{Date: day.String(), Items: itemStrings(sched.ItemsOn(day))})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getEvents(d Deps, log logx.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if d.Audit == nil {
			return c.String(http.StatusNotFound, "storage disabled")
		}
		limit := 20
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 500 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = n
		}
		evs, err := d.Audit.RecentDutyEvents(c.Request().Context(), limit)
		if err != nil {
			log.Warn("events request failed", logx.Err(err))
			return c.String(http.StatusInternalServerError, "internal error")
		}
		out := make([]eventResponse, 0, len(evs))
		for _, e := range evs {
			out = append(out, eventResponse{At: e.At, Kind: e.Kind, Cycle: e.Cycle, Phase: e.Phase, Member: e.Member, Detail: e.Detail})
		}
		return c.JSON(http.StatusOK, out)
	}
}

func itemStrings(items []collection.Item) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	return out
}
