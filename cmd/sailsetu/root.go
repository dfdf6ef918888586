package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SAILSETU"
)

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sailsetu",
		Short: "Conversational gateway to SailPoint IdentityIQ over WhatsApp and Telegram",
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))

	cmd.PersistentFlags().String("iiq-base-url", "", "IdentityIQ base URL (e.g. https://iiq.example.com/identityiq).")
	cmd.PersistentFlags().String("iiq-username", "", "IdentityIQ API username.")
	cmd.PersistentFlags().String("iiq-password", "", "IdentityIQ API password.")
	_ = viper.BindPFlag("iiq.base_url", cmd.PersistentFlags().Lookup("iiq-base-url"))
	_ = viper.BindPFlag("iiq.username", cmd.PersistentFlags().Lookup("iiq-username"))
	_ = viper.BindPFlag("iiq.password", cmd.PersistentFlags().Lookup("iiq-password"))

	cmd.AddCommand(newTelegramCmd())
	cmd.AddCommand(newWhatsAppCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	// Local development convenience; environment wins over .env contents.
	_ = godotenv.Load()

	initViperDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}
