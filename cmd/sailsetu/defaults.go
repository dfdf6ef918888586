package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)

	// IdentityIQ backend
	viper.SetDefault("iiq.base_url", "")
	viper.SetDefault("iiq.username", "")
	viper.SetDefault("iiq.password", "")
	viper.SetDefault("iiq.request_timeout", 60*time.Second)

	// Telegram channel
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.retry_delay", 1*time.Second)
	viper.SetDefault("telegram.max_concurrency", 4)
	viper.SetDefault("telegram.queue_size", 16)

	// WhatsApp channel
	viper.SetDefault("whatsapp.bridge_url", "")
	viper.SetDefault("whatsapp.reconnect_delay", 5*time.Second)

	// Status server
	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.addr", ":8080")
}
