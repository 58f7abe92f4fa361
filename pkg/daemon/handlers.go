package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/OpenCHAMI/pductl/internal/cache"
	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/OpenCHAMI/pductl/pkg/retry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type ctxKey int

const controllerKey ctxKey = iota

func (s *Server) withController(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.controllers[chi.URLParam(r, "endpoint")]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown endpoint %q", chi.URLParam(r, "endpoint")))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), controllerKey, c)))
	})
}

func controller(r *http.Request) Controller {
	return r.Context().Value(controllerKey).(Controller)
}

// call retries op on failure; range errors are returned immediately.
func call[T any](s *Server, r *http.Request, op func() (T, error)) (T, error) {
	return retry.DoValue(r.Context(), s.opts.Retries, s.opts.RetryDelay, func(attempt int) (T, error) {
		v, err := op()
		if errors.Is(err, pdu.ErrRange) {
			return v, retry.Stop(err)
		}
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Str("path", r.URL.Path).Msg("request failed")
		}
		return v, err
	})
}

func outletParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		return 0, fmt.Errorf("invalid outlet number %q", chi.URLParam(r, "n"))
	}
	return n, nil
}

func (s *Server) listEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Endpoints())
}

func (s *Server) getOutletCount(w http.ResponseWriter, r *http.Request) {
	c := controller(r)
	count, err := call(s, r, c.GetOutletCount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (s *Server) getOutletState(w http.ResponseWriter, r *http.Request) {
	n, err := outletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c := controller(r)
	state, err := call(s, r, func() (bool, error) { return c.GetOutletState(n) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) setOutletState(w http.ResponseWriter, r *http.Request) {
	n, err := outletParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var state bool
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("expected a JSON boolean body: %w", err))
		return
	}

	c := controller(r)
	_, err = call(s, r, func() (struct{}, error) { return struct{}{}, c.SetOutletState(n, state) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	endpoint := chi.URLParam(r, "endpoint")
	log.Info().Str("endpoint", endpoint).Msgf("outlet %d turned %s", n, onOff(state))
	if s.opts.History != nil {
		event := cache.NewOutletEvent(endpoint, c.Device(), n, state)
		event.RequestID = middleware.GetReqID(r.Context())
		if err := s.opts.History.Insert(event); err != nil {
			log.Warn().Err(err).Msg("failed to record outlet change")
		}
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) getAllOutletStates(w http.ResponseWriter, r *http.Request) {
	c := controller(r)
	states, err := call(s, r, c.GetAllOutletStates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) getInventory(w http.ResponseWriter, r *http.Request) {
	c := controller(r)
	endpoint := chi.URLParam(r, "endpoint")
	inventory, err := call(s, r, func() (*pdu.PDUInventory, error) { return c.Inventory(endpoint) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, inventory)
}

func onOff(state bool) string {
	if state {
		return "on"
	}
	return "off"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
