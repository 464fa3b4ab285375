// Package netctx wraps background operations with the network context they
// need, typically a VPN connection to reach private endpoints.
//
// Wrapping is explicit: operations are composed with Chain at registration
// time rather than decorated implicitly.
package netctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"devflow/internal/config"
	"devflow/internal/logging"
	"devflow/internal/tasks"
)

// Middleware decorates an operation.
type Middleware func(tasks.Operation) tasks.Operation

// CommandFunc runs one configured shell-free command line.
type CommandFunc func(ctx context.Context, argv []string) ([]byte, error)

// Chain applies mws to op; the first middleware is the outermost.
func Chain(op tasks.Operation, mws ...Middleware) tasks.Operation {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			op = mws[i](op)
		}
	}
	return op
}

// Option configures WithNetworkContext.
type Option func(*networkContext)

// WithCommandFunc replaces command execution.
func WithCommandFunc(fn CommandFunc) Option {
	return func(n *networkContext) {
		if fn != nil {
			n.run = fn
		}
	}
}

type networkContext struct {
	cfg    config.Network
	logger *slog.Logger
	run    CommandFunc
}

// WithNetworkContext returns a middleware that brings the network up before
// the operation and tears it down afterwards, even when the operation fails.
// If the check command reports an existing connection, the operation runs
// as-is and nothing is torn down. A disabled configuration yields a
// pass-through middleware.
func WithNetworkContext(cfg config.Network, logger *slog.Logger, opts ...Option) Middleware {
	n := &networkContext{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "netctx"),
		run:    runCommand,
	}
	for _, opt := range opts {
		opt(n)
	}
	return func(op tasks.Operation) tasks.Operation {
		if !n.cfg.Enabled || strings.TrimSpace(n.cfg.ConnectCommand) == "" {
			return op
		}
		return func(ctx context.Context) error {
			return n.around(ctx, op)
		}
	}
}

func (n *networkContext) around(ctx context.Context, op tasks.Operation) (err error) {
	logger := logging.WithContext(ctx, n.logger)

	if n.cfg.CheckCommand != "" {
		if _, checkErr := n.exec(ctx, n.cfg.CheckCommand); checkErr == nil {
			logger.Debug("network context already active", logging.String(logging.FieldEventType, "network_already_connected"))
			return op(ctx)
		}
	}

	logger.Info("connecting network context",
		logging.String(logging.FieldEventType, "network_connect"),
		logging.String("command", n.cfg.ConnectCommand),
	)
	if out, connectErr := n.exec(ctx, n.cfg.ConnectCommand); connectErr != nil {
		return fmt.Errorf("connect network context: %w%s", connectErr, outputSuffix(out))
	}

	defer func() {
		if n.cfg.DisconnectCommand == "" {
			return
		}
		// Teardown must run even when ctx was cancelled by the operation.
		teardownCtx := context.WithoutCancel(ctx)
		if out, disconnectErr := n.exec(teardownCtx, n.cfg.DisconnectCommand); disconnectErr != nil {
			logging.WarnWithContext(logger, "network disconnect failed", "network_disconnect_failed",
				logging.Error(disconnectErr),
				logging.String("output", strings.TrimSpace(string(out))),
				logging.String(logging.FieldErrorHint, "disconnect manually with "+n.cfg.DisconnectCommand),
				logging.String(logging.FieldImpact, "network connection left open"),
			)
			err = errors.Join(err, fmt.Errorf("disconnect network context: %w", disconnectErr))
			return
		}
		logger.Info("network context disconnected", logging.String(logging.FieldEventType, "network_disconnect"))
	}()

	return op(ctx)
}

func (n *networkContext) exec(ctx context.Context, line string) ([]byte, error) {
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	timeout := time.Duration(n.cfg.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return n.run(ctx, argv)
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

func outputSuffix(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return ""
	}
	return ": " + trimmed
}
