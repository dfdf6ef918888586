package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sailsetu/sailsetu/bot"
	"github.com/sailsetu/sailsetu/iiq"
	"github.com/sailsetu/sailsetu/internal/channelruntime/telegram"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTelegramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			rt, err := buildTelegramRuntime(cmd, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.Run(ctx)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().Duration("telegram-poll-timeout", 0, "Long-poll timeout for getUpdates.")
	cmd.Flags().Duration("telegram-retry-delay", 0, "Delay before retrying after a transport error.")
	cmd.Flags().Int("telegram-max-concurrency", 0, "Max conversations handled at once.")

	return cmd
}

func buildTelegramRuntime(cmd *cobra.Command, logger *slog.Logger) (*telegram.Runtime, error) {
	backend := backendFromViper()
	registry, err := registryFromViper()
	if err != nil {
		return nil, err
	}

	engineFactory := func(tr bot.Transport) *bot.Engine {
		return bot.New(bot.Options{
			Channel:            telegram.Channel,
			Registry:           registry,
			Transport:          tr,
			Backend:            backendLauncher(backend),
			Logger:             logger,
			ConfigFreeFeatures: configFreeFeatures,
		})
	}

	return telegram.NewRuntime(engineFactory, backend, logger, telegram.RunOptions{
		BotToken:       flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"),
		PollTimeout:    flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout"),
		RetryDelay:     flagOrViperDuration(cmd, "telegram-retry-delay", "telegram.retry_delay"),
		MaxConcurrency: flagOrViperInt(cmd, "telegram-max-concurrency", "telegram.max_concurrency"),
		QueueSize:      viper.GetInt("telegram.queue_size"),
	})
}

// backendLauncher keeps a nil *iiq.Client out of the Launcher interface.
func backendLauncher(c *iiq.Client) iiq.Launcher {
	if c == nil {
		return nil
	}
	return c
}
