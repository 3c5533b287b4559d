package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rterm/internal/metrics"
	"rterm/internal/store"
	"rterm/pkg/client"
	"rterm/pkg/config"
	"rterm/pkg/console"
	"rterm/pkg/events"
	"rterm/pkg/secure"
	"rterm/pkg/terminal"
)

var (
	attachCaption string
	attachNew     bool
)

var attachCmd = &cobra.Command{
	Use:   "attach [caption-or-handle]",
	Short: "Open a remote terminal",
	Long: `Open a terminal on the rterm server and connect it to this console.

Without an argument, or with --new, a new shell is started. Otherwise the
terminal with the given caption or handle is reattached and its scrollback
is replayed.

Press Ctrl+] then 'q' to detach, 'k' to terminate the remote shell, or 'l'
to clear the screen.`,
	Aliases: []string{"open"},
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		registry, err := openRegistry()
		if err != nil {
			return err
		}

		opts, err := sessionOptions(cfg, registry, args)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		return runAttach(ctx, cfg, registry, opts)
	},
}

// sessionOptions resolves the terminal to attach from the registry.
func sessionOptions(cfg *config.Config, registry *store.Registry, args []string) (terminal.Options, error) {
	opts := terminal.Options{
		ID:          uuid.New().String(),
		Cols:        cfg.Terminal.Cols,
		Rows:        cfg.Terminal.Rows,
		ChunkSize:   cfg.Terminal.ChunkSize,
		CallTimeout: cfg.Terminal.CallTimeout,
		Welcome:     cfg.Terminal.Welcome,
	}

	var ref string
	if len(args) > 0 {
		ref = args[0]
	}

	if ref != "" && !attachNew {
		entry, ok := registry.Find(ref)
		if !ok {
			return opts, fmt.Errorf("no terminal named %q; run 'rterm list' to see known terminals", ref)
		}
		opts.Handle = entry.Handle
		opts.Caption = entry.Caption
		opts.Title = entry.Title
		opts.Sequence = entry.Sequence
		return opts, nil
	}

	opts.Sequence = registry.NextSequence()
	opts.Caption = attachCaption
	if opts.Caption == "" {
		opts.Caption = ref
	}
	return opts, nil
}

func runAttach(ctx context.Context, cfg *config.Config, registry *store.Registry, opts terminal.Options) error {
	rtermClient := client.New(cfg)

	mode, err := secure.ParseMode(cfg.Secure.Mode)
	if err != nil {
		return err
	}
	encoder, err := secure.New(mode, rtermClient)
	if err != nil {
		return err
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunkSize(ctx, encoder)
	}

	bus := events.New()
	con := console.New(bus, opts.ID)

	session := terminal.NewSession(terminal.Deps{
		Factory: rtermClient,
		Encoder: encoder,
		Display: con,
		Bus:     bus,
	}, opts)

	stream, err := rtermClient.NewEventStream(bus)
	if err != nil {
		return err
	}
	go func() {
		if err := stream.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event stream stopped")
		}
	}()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	tracker := trackSession(bus, registry, session.ID(), cfg.Server.Endpoint, opts.Sequence)
	defer tracker.RemoveAll()

	bus.Subscribe(events.TopicSessionStopped, session.ID(), func(events.Event) {
		con.WriteLine("")
		con.WriteLine("Remote shell exited. Press any key to start it again, or Ctrl+] then 'q' to leave.")
	})

	fmt.Fprintf(os.Stderr, "Opening %s on %s...\n", session.Caption(), cfg.Server.Endpoint)
	fmt.Fprintf(os.Stderr, "Press Ctrl+] then 'q' to detach\n\n")

	session.Show()
	session.TerminalReady()

	runErr := con.Run(ctx, session)

	session.Detach()
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timed out waiting for session teardown")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("console session error: %w", runErr)
	}
	return nil
}

// chunkSize asks the encoder for its plaintext limit, falling back to the
// default when the server key is not available yet.
func chunkSize(ctx context.Context, encoder secure.Encoder) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	size, err := encoder.ChunkSize(ctx)
	if err != nil {
		log.Warn().Err(err).Int("chunk_size", terminal.DefaultChunkSize).Msg("Failed to get encryption key, using default chunk size")
		return terminal.DefaultChunkSize
	}
	return size
}

// trackSession records the attached terminal in the registry whenever the
// session starts or its title changes.
func trackSession(bus *events.Bus, registry *store.Registry, sessionID, endpoint string, sequence int) *events.Registrations {
	update := func(e events.Event) {
		info, ok := e.Payload.(events.SessionInfo)
		if !ok || info.Handle == "" {
			return
		}
		registry.Upsert(store.Entry{
			Handle:       info.Handle,
			Caption:      info.Caption,
			Title:        info.Title,
			Sequence:     sequence,
			Endpoint:     endpoint,
			LastAttached: time.Now().UTC(),
		})
		if err := registry.Save(); err != nil {
			log.Warn().Err(err).Str("path", registry.Path()).Msg("Failed to save terminal registry")
		}
	}

	regs := &events.Registrations{}
	regs.Add(bus.Subscribe(events.TopicSessionStarted, sessionID, update))
	regs.Add(bus.Subscribe(events.TopicTitleChanged, sessionID, update))
	return regs
}

func init() {
	attachCmd.Flags().StringVar(&attachCaption, "caption", "", "caption for a new terminal (default \"Terminal N\")")
	attachCmd.Flags().BoolVar(&attachNew, "new", false, "start a new terminal even if the argument names a known one")
	rootCmd.AddCommand(attachCmd)
}
