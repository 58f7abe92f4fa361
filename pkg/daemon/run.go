package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OpenCHAMI/pductl/internal/cache/sqlite"
	"github.com/OpenCHAMI/pductl/internal/config"
	"github.com/OpenCHAMI/pductl/pkg/pdu"
	"github.com/rs/zerolog/log"
)

// Run connects to every configured PDU and serves them until ctx is
// cancelled. It fails without serving if any PDU cannot be reached.
func Run(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Ports) == 0 {
		return fmt.Errorf("no ports configured")
	}

	opts := Options{
		Endpoint:   cfg.Daemon.Endpoint,
		Token:      cfg.Daemon.Token,
		Retries:    cfg.Daemon.Retries,
		RetryDelay: cfg.Daemon.RetryDelay,
	}
	if cfg.Daemon.JWTPublicKey != "" {
		key, err := LoadJWTKey(cfg.Daemon.JWTPublicKey)
		if err != nil {
			return err
		}
		opts.JWTKey = key
	}
	if opts.Token == "" && opts.JWTKey == nil {
		log.Warn().Msg("no token or JWT key configured; the daemon is open to anyone")
	}

	if cfg.HistoryFile != "" {
		history, err := sqlite.CreateHistoryIfNotExists(cfg.HistoryFile)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer history.Close()
		opts.History = history
	}

	controllers, err := connectAll(ctx, cfg)
	defer func() {
		for _, c := range controllers {
			c.Disconnect()
		}
	}()
	if err != nil {
		return err
	}

	served := make(map[string]Controller, len(controllers))
	for endpoint, c := range controllers {
		served[endpoint] = c
	}
	return NewServer(served, opts).ListenAndServe(ctx)
}

// connectAll connects to all PDUs concurrently. The returned map holds
// every controller that was created, connected or not, so the caller can
// disconnect them.
func connectAll(ctx context.Context, cfg *config.Config) (map[string]*pdu.Controller, error) {
	store, err := cfg.OpenSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets store: %w", err)
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		errs        []error
		controllers = make(map[string]*pdu.Controller, len(cfg.Ports))
	)
	for _, port := range cfg.Ports {
		c := pdu.New(port.Device, cfg.Credentials(port, store), cfg.PDU)
		controllers[port.Endpoint] = c

		wg.Add(1)
		go func(port config.Port, c *pdu.Controller) {
			defer wg.Done()
			if err := c.Connect(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to connect %s on %s: %w", port.Endpoint, port.Device, err))
				mu.Unlock()
			}
		}(port, c)
	}
	wg.Wait()
	return controllers, errors.Join(errs...)
}
