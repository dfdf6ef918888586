package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sailsetu/sailsetu/bot"
	"github.com/sailsetu/sailsetu/internal/channelruntime/whatsapp"
	"github.com/sailsetu/sailsetu/internal/statusserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The WhatsApp command also serves the status endpoints: pairing needs
// the QR code reachable over HTTP.
func newWhatsAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatsapp",
		Short: "Run the WhatsApp channel and the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			rt, err := buildWhatsAppRuntime(cmd, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !flagOrViperBool(cmd, "status-enabled", "status.enabled") {
				return rt.Run(ctx)
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			srv := statusserver.New(logger, statusserver.Options{
				Addr:     viper.GetString("status.addr"),
				Version:  version,
				Channels: channelStatusFunc(nil, rt),
				WhatsAppQR: func() statusserver.QRStatus {
					st := rt.Status()
					return statusserver.QRStatus{State: st.State, QR: st.QR}
				},
			})

			var wg sync.WaitGroup
			errCh := make(chan error, 2)
			for _, run := range []func(context.Context) error{rt.Run, srv.Run} {
				wg.Add(1)
				go func(run func(context.Context) error) {
					defer wg.Done()
					if err := run(ctx); err != nil {
						errCh <- err
						cancel()
					}
				}(run)
			}
			<-ctx.Done()
			wg.Wait()
			select {
			case err := <-errCh:
				return err
			default:
				return nil
			}
		},
	}

	cmd.Flags().String("whatsapp-bridge-url", "", "WhatsApp bridge websocket URL.")
	cmd.Flags().Duration("whatsapp-reconnect-delay", 0, "Delay before redialing a dropped bridge connection.")
	cmd.Flags().Bool("status-enabled", true, "Serve the status HTTP endpoints.")

	return cmd
}

func buildWhatsAppRuntime(cmd *cobra.Command, logger *slog.Logger) (*whatsapp.Runtime, error) {
	backend := backendFromViper()
	registry, err := registryFromViper()
	if err != nil {
		return nil, err
	}

	// The note-to-self admission rule limits this channel to the bot
	// operator, so capability filtering is skipped.
	engineFactory := func(tr bot.Transport) *bot.Engine {
		return bot.New(bot.Options{
			Channel:            whatsapp.Channel,
			Registry:           registry,
			Transport:          tr,
			Backend:            backendLauncher(backend),
			Logger:             logger,
			ConfigFreeFeatures: configFreeFeatures,
			AssumeMaster:       true,
		})
	}

	return whatsapp.NewRuntime(engineFactory, logger, whatsapp.RunOptions{
		BridgeURL:      flagOrViperString(cmd, "whatsapp-bridge-url", "whatsapp.bridge_url"),
		ReconnectDelay: flagOrViperDuration(cmd, "whatsapp-reconnect-delay", "whatsapp.reconnect_delay"),
	})
}
