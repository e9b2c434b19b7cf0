package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"meteo/config"
	"meteo/logger"
	"meteo/manager"
	"meteo/server"
)

// Runtime is everything a command needs once configuration is loaded.
type Runtime struct {
	Config  *config.Config
	Logger  *logger.Logger
	Service *manager.Service
}

// Factory loads configuration from configPath (empty for defaults only) and
// wires the service. It fails when no api key is available, so no command
// can issue a query without one.
type Factory func(configPath string) (*Runtime, error)

var errNoRuntime = errors.New("runtime not initialized")

func New(factory Factory) (*cobra.Command, error) {
	if factory == nil {
		return nil, errors.New("nil factory")
	}

	var (
		configPath string
		rt         *Runtime
	)

	cmd := &cobra.Command{
		Use:           "meteo",
		Short:         "Current weather for a city, from OpenWeatherMap",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			rt, err = factory(configPath)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt != nil {
				_ = rt.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")

	loaded := func() (*Runtime, error) {
		if rt == nil {
			return nil, errNoRuntime
		}
		return rt, nil
	}

	cmd.AddCommand(newQueryCommand(loaded), newServeCommand(loaded))

	return cmd, nil
}

func newQueryCommand(loaded func() (*Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "query <city>",
		Short: "Print the current conditions for a city",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loaded()
			if err != nil {
				return err
			}

			outcome := rt.Service.Query(cmd.Context(), strings.Join(args, " "))
			if !outcome.OK() {
				cmd.PrintErrln(outcome.Message())
				return outcome.Failure
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, outcome.Report.Description)
			fmt.Fprintf(out, "%d°C\n", outcome.Report.TemperatureCelsius)

			return nil
		},
	}
}

func newServeCommand(loaded func() (*Runtime, error)) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the weather search over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loaded()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = rt.Config.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, rt, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")

	return cmd
}

func serve(ctx context.Context, rt *Runtime, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := manager.NewState()
	go state.Run(ctx)
	rt.Service.SetState(state)

	handler := server.NewHandler(rt.Service, state, rt.Logger)

	return server.Serve(ctx, addr, handler.Routes(), rt.Config.Server.ShutdownTimeout, rt.Logger.Named("server"))
}
