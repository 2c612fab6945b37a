/*
The redial package is the caller-side retry policy the core engine
deliberately doesn't have. A closed Client is never reopened, so this
helper builds a fresh one through the supplied factory whenever the
current one dies, pacing attempts with an exponential backoff.
*/
package redial

import (
	"fmt"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"gopkg.in/tomb.v2"

	"github.com/getlayered/layerconn/connection"
	"github.com/getlayered/layerconn/logger"
)

var (
	maxBackoffInterval = 15 * time.Minute

	// How long we keep retrying before giving up for good
	MaximumRedialWaitTime = 1 * time.Hour
)

// Factory constructs and opens a new client. It's called for the
// initial connection and again after every loss.
type Factory func() (*connection.Client, error)

type Redialer struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	factory Factory
	current atomic.Pointer[connection.Client]
}

func New(logger *logger.Logger, factory Factory) *Redialer {
	r := &Redialer{
		logger:  logger,
		factory: factory,
	}

	r.tmb.Go(r.run)
	return r
}

func (r *Redialer) run() error {
	r.logger.Info("Redialer has started")
	defer r.logger.Info("Redialer has stopped")

	for {
		client, err := r.connect()
		if err != nil {
			return err
		}
		if client == nil {
			// We were closed while connecting
			return nil
		}

		r.current.Store(client)

		select {
		case <-r.tmb.Dying():
			client.Close()
			return nil
		case <-client.Done():
			if err := client.Err(); err != nil {
				r.logger.Infof("Lost connection (%s), redialing...", err)
			} else {
				r.logger.Info("Connection closed cleanly, redialing...")
			}
		}
	}
}

func (r *Redialer) connect() (*connection.Client, error) {
	backoffParams := backoff.NewExponentialBackOff()
	backoffParams.MaxElapsedTime = MaximumRedialWaitTime
	backoffParams.MaxInterval = maxBackoffInterval

	ticker := backoff.NewTicker(backoffParams)
	defer ticker.Stop()

	for {
		select {
		case <-r.tmb.Dying():
			return nil, nil
		case _, ok := <-ticker.C:
			if !ok {
				return nil, fmt.Errorf("failed to connect after %s", backoffParams.MaxElapsedTime)
			}

			client, err := r.factory()
			if err != nil {
				r.logger.Infof("Retrying in %s because we failed to connect: %s", backoffParams.NextBackOff().Round(time.Second), err)
				continue
			}

			return client, nil
		}
	}
}

// Current returns the live client, nil before the first successful
// connection.
func (r *Redialer) Current() *connection.Client {
	return r.current.Load()
}

// Close stops redialing and closes the current client. Blocks until the
// redial loop has exited.
func (r *Redialer) Close() {
	if !r.tmb.Alive() {
		return
	}

	r.tmb.Kill(nil)
	r.tmb.Wait()
}

func (r *Redialer) Done() <-chan struct{} {
	return r.tmb.Dead()
}

func (r *Redialer) Err() error {
	return r.tmb.Err()
}
