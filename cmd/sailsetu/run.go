package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sailsetu/sailsetu/internal/channelruntime/telegram"
	"github.com/sailsetu/sailsetu/internal/channelruntime/whatsapp"
	"github.com/sailsetu/sailsetu/internal/statusserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNoChannels = errors.New("no channels configured: set telegram.bot_token and/or whatsapp.bridge_url")

// run starts every configured channel plus the status server in one
// process. A channel is "configured" when its transport setting is
// present; at least one channel is required.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all configured channels and the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			var (
				tgRT *telegram.Runtime
				waRT *whatsapp.Runtime
			)
			if flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token") != "" {
				tgRT, err = buildTelegramRuntime(cmd, logger)
				if err != nil {
					return err
				}
			}
			if flagOrViperString(cmd, "whatsapp-bridge-url", "whatsapp.bridge_url") != "" {
				waRT, err = buildWhatsAppRuntime(cmd, logger)
				if err != nil {
					return err
				}
			}
			if tgRT == nil && waRT == nil {
				return errNoChannels
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			var wg sync.WaitGroup
			errCh := make(chan error, 3)
			start := func(run func(context.Context) error) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := run(ctx); err != nil {
						errCh <- err
						cancel()
					}
				}()
			}

			if tgRT != nil {
				start(tgRT.Run)
			}
			if waRT != nil {
				start(waRT.Run)
			}
			if flagOrViperBool(cmd, "status-enabled", "status.enabled") {
				srv := statusserver.New(logger, statusserver.Options{
					Addr:     viper.GetString("status.addr"),
					Version:  version,
					Channels: channelStatusFunc(tgRT, waRT),
					WhatsAppQR: func() statusserver.QRStatus {
						if waRT == nil {
							return statusserver.QRStatus{State: "not_running"}
						}
						st := waRT.Status()
						return statusserver.QRStatus{State: st.State, QR: st.QR}
					},
				})
				start(srv.Run)
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

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().Duration("telegram-poll-timeout", 0, "Long-poll timeout for getUpdates.")
	cmd.Flags().Duration("telegram-retry-delay", 0, "Delay before retrying after a transport error.")
	cmd.Flags().Int("telegram-max-concurrency", 0, "Max conversations handled at once.")
	cmd.Flags().String("whatsapp-bridge-url", "", "WhatsApp bridge websocket URL.")
	cmd.Flags().Duration("whatsapp-reconnect-delay", 0, "Delay before redialing a dropped bridge connection.")
	cmd.Flags().Bool("status-enabled", true, "Serve the status HTTP endpoints.")

	return cmd
}

func channelStatusFunc(tgRT *telegram.Runtime, waRT *whatsapp.Runtime) func() []statusserver.ChannelStatus {
	return func() []statusserver.ChannelStatus {
		var out []statusserver.ChannelStatus
		if tgRT != nil {
			out = append(out, statusserver.ChannelStatus{
				Channel:  telegram.Channel,
				State:    "running",
				Sessions: tgRT.Engine().Sessions().Len(),
			})
		}
		if waRT != nil {
			st := waRT.Status()
			out = append(out, statusserver.ChannelStatus{
				Channel:  whatsapp.Channel,
				State:    st.State,
				Sessions: st.Sessions,
			})
		}
		return out
	}
}
