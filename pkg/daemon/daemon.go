// Package daemon serves the outlets of every configured PDU over HTTP.
// Each PDU is mounted under its endpoint name:
//
//	GET  /{endpoint}/outlets        outlet count
//	GET  /{endpoint}/outlet/{n}     state of outlet n
//	POST /{endpoint}/outlet/{n}     switch outlet n (body: true or false)
//	GET  /{endpoint}/outlets/state  state of every outlet
//	GET  /{endpoint}/inventory      inventory document
package daemon

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/OpenCHAMI/pductl/internal/cache"
	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of *pdu.Controller the daemon uses.
type Controller interface {
	Device() string
	State() pdu.State
	GetOutletCount() (int, error)
	GetOutletState(n int) (bool, error)
	SetOutletState(n int, state bool) error
	GetAllOutletStates() ([]bool, error)
	Inventory(name string) (*pdu.PDUInventory, error)
}

// History records outlet changes.
type History interface {
	Insert(events ...cache.OutletEvent) error
}

type Options struct {
	Endpoint string
	// Token, if set, is accepted as a static bearer token.
	Token string
	// JWTKey, if set, verifies bearer JWTs.
	JWTKey     jwk.Key
	Retries    int
	RetryDelay time.Duration
	History    History
}

type Server struct {
	opts        Options
	controllers map[string]Controller
	router      *chi.Mux
}

func NewServer(controllers map[string]Controller, opts Options) *Server {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	s := &Server{
		opts:        opts,
		controllers: controllers,
		router:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
		s.authorize,
	)
	s.router.Get("/", s.listEndpoints)
	s.router.Route("/{endpoint}", func(r chi.Router) {
		r.Use(s.withController)
		r.Get("/outlets", s.getOutletCount)
		r.Get("/outlets/state", s.getAllOutletStates)
		r.Get("/outlet/{n}", s.getOutletState)
		r.Post("/outlet/{n}", s.setOutletState)
		r.Get("/inventory", s.getInventory)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Endpoints returns the mounted endpoint names in sorted order.
func (s *Server) Endpoints() []string {
	endpoints := maps.Keys(s.controllers)
	slices.Sort(endpoints)
	return endpoints
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.opts.Endpoint,
		Handler: s.router,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("endpoint", s.opts.Endpoint).Strs("pdus", s.Endpoints()).Msg("daemon listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
