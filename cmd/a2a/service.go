package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/GreenD93/mcp-project/pkg/app"
)

// program runs the application under the system service manager.
type program struct {
	params app.Params

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
	logger service.Logger
}

var _ service.Interface = (*program)(nil)

// Start implements service.Interface. It must not block.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan error, 1)
	p.mu.Unlock()

	go func() {
		err := app.Run(ctx, p.params)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(_ service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

func serviceConfig(params app.Params) (*service.Config, error) {
	args := []string{"start"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        "a2a",
		DisplayName: "a2a agent router",
		Description: "Routes requests to catalogued agents and their tool servers.",
		Arguments:   args,
	}, nil
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "service <" + strings.Join(append(slices.Clone(service.ControlAction[:]), "run"), "|") + ">",
		Short: "Manage a2a as a system service",
		Args:  cobra.ExactArgs(1),
		ValidArgs: append(slices.Clone(service.ControlAction[:]), "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := flags.params()
			cfg, err := serviceConfig(params)
			if err != nil {
				return err
			}
			prg := &program{params: params}
			svc, err := service.New(prg, cfg)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}
			prg.logger, err = svc.Logger(nil)
			if err != nil {
				return fmt.Errorf("service: logger: %w", err)
			}

			action := args[0]
			if action == "run" {
				return svc.Run()
			}
			if !slices.Contains(service.ControlAction[:], action) {
				return fmt.Errorf("unknown action %q", action)
			}
			if err := service.Control(svc, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
			return nil
		},
	}
}
