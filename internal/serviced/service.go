// Package serviced lets the orchestrator install and run as a native
// OS service (systemd/launchd/Windows service) via kardianos/service,
// per SPEC_FULL §4.12. This has no analogue in the teacher, which only
// ever runs in a foreground terminal; grounded on kardianos/service's
// own documented Program interface, the idiomatic way that library is
// consumed across the ecosystem.
package serviced

import (
	"context"
	"log"
	"time"

	"github.com/kardianos/service"
)

// Server is the subset of the orchestrator's lifecycle the service
// wrapper needs to drive: start serving, and shut down within a
// deadline.
type Server interface {
	Serve() error
	Shutdown(ctx context.Context) error
}

const (
	Name        = "transcription-orchestrator"
	DisplayName = "Transcription Orchestrator"
	Description = "Runs the media transcription job orchestrator HTTP API and background workers."
)

type program struct {
	srv         Server
	stopTimeout time.Duration
	errCh       chan error
}

// New builds a kardianos/service.Service wrapping srv. stopTimeout
// bounds how long Stop waits for in-flight work to unwind.
func New(srv Server, stopTimeout time.Duration) (service.Service, error) {
	p := &program{srv: srv, stopTimeout: stopTimeout, errCh: make(chan error, 1)}
	cfg := &service.Config{
		Name:        Name,
		DisplayName: DisplayName,
		Description: Description,
	}
	return service.New(p, cfg)
}

func (p *program) Start(s service.Service) error {
	go func() {
		if err := p.srv.Serve(); err != nil {
			log.Printf("serviced: server exited: %v", err)
			p.errCh <- err
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.stopTimeout)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

// Control runs a lifecycle verb (install, uninstall, start, stop,
// restart) against the platform's service manager.
func Control(svc service.Service, action string) error {
	return service.Control(svc, action)
}
