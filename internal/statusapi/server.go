package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	logx "gstaldergeist/pkg/logx"
)

type Server struct {
	e    *echo.Echo
	addr string
	log  logx.Logger
}

func NewServer(addr string, d Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.ContextTimeout(30 * time.Second))
	Register(e, d, log)
	return &Server{e: e, addr: addr, log: log}
}

func (s *Server) Handler() http.Handler { return s.e }

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("status api listening", logx.String("addr", s.addr))
		errc <- s.e.Start(s.addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.e.Shutdown(sctx); err != nil {
			s.log.Warn("status api shutdown", logx.Err(err))
		}
		return nil
	}
}
