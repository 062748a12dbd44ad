package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/api"
	"github.com/tsarna/parley/pkg/parley/auth"
	"github.com/tsarna/parley/pkg/parley/o11y"
	"github.com/tsarna/parley/pkg/parley/otel"
	"github.com/tsarna/parley/pkg/parley/realtime"
	"github.com/tsarna/parley/pkg/parley/session"
	"github.com/tsarna/parley/pkg/parley/ui"
)

// joinCmd represents the join command
var joinCmd = &cobra.Command{
	Use:   "join [room-id]",
	Short: "Join a room for an interactive chat session",
	Long: `Join a room and start an interactive chat session.

Incoming messages stream to the terminal as other members post them.
Anything you type is sent to the room; lines starting with / are commands
(see /help). Leave with /exit or Ctrl+C.

Examples:
  parley join Y2lzY29zcGFyazovL3VzL1JPT00vLi4u
  parley join --name "Build Breakages"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

var (
	joinRoomName string
	joinHistory  int
)

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&joinRoomName, "name", "n", "", "join the room with this title instead of an id")
	joinCmd.Flags().IntVar(&joinHistory, "history", 10, "recent messages to show on join (0 disables)")
}

func runJoin(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, provider, err := newAuthProvider(logger)
	if err != nil {
		return err
	}
	if !provider.Authenticated(cmd.Context()) {
		return auth.ErrNotAuthenticated
	}

	client, err := newAPIClient(cfg, provider, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}

	room, err := resolveRoom(ctx, client, args)
	if err != nil {
		return err
	}

	metrics := o11y.NewPipelineMetrics(otel.NewProvider("parley", appVersion))
	printer := ui.NewPrinter(client, me.ID, os.Stdout, logger)

	inputEnded := make(chan struct{})
	var controller *session.Controller

	controller, err = session.NewController().
		WithConnectionFactory(func(ctx context.Context, focus *realtime.RoomFocus) (session.Link, error) {
			registrar := realtime.NewRegistrar(
				cfg.DeviceRegURL,
				realtime.TokenSource(provider.Source()),
				me.DisplayName,
				logger,
			)
			dispatcher := realtime.NewDispatcher(client, printer, focus, logger).
				WithMetrics(metrics)
			return realtime.NewConnection().
				WithEndpointSource(registrar).
				WithTokenSource(realtime.TokenSource(provider.Source())).
				WithDispatcher(dispatcher).
				WithLogger(logger).
				WithMetrics(metrics).
				WithMaxReconnects(cfg.MaxReconnects).
				Build()
		}).
		WithInput(func(ctx context.Context) error {
			defer close(inputEnded)
			return runInputLoop(ctx, client, controller)
		}).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	if joinHistory > 0 {
		showHistory(ctx, client, printer, room.ID, joinHistory, logger)
	}

	if err := controller.Start(ctx, room.ID); err != nil {
		return err
	}

	fmt.Printf("Joined %s. Type /help for commands, /exit to leave.\n", room.Title)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Debug("signal received, exiting", zap.String("signal", sig.String()))
	case <-inputEnded:
	case <-ctx.Done():
	}

	cancel()
	if err := controller.Stop(); err != nil {
		logger.Warn("error during session stop", zap.Error(err))
	}

	// A session that died because the realtime link gave up is a failure the
	// user should see; anything else was a normal exit.
	var exhausted *realtime.ExhaustedError
	if err := controller.Err(); errors.As(err, &exhausted) {
		return err
	}
	return nil
}

func resolveRoom(ctx context.Context, client *api.Client, args []string) (*api.Room, error) {
	switch {
	case joinRoomName != "":
		return client.RoomByName(ctx, joinRoomName)
	case len(args) == 1:
		return client.GetRoom(ctx, args[0])
	default:
		return nil, fmt.Errorf("a room id or --name is required")
	}
}

func showHistory(ctx context.Context, client *api.Client, printer *ui.Printer, roomID string, limit int, logger *zap.Logger) {
	msgs, err := client.ListMessages(ctx, roomID, limit)
	if err != nil {
		logger.Warn("could not load room history", zap.Error(err))
		return
	}
	// Newest first on the wire; print oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		printer.Print(ctx, &msgs[i])
	}
}
