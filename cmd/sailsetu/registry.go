package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sailsetu/sailsetu/bot"
	"github.com/sailsetu/sailsetu/features"
	"github.com/sailsetu/sailsetu/iiq"
	"github.com/spf13/viper"
)

// configFreeFeatures lists the features that stay usable when no
// IdentityIQ configuration is present.
var configFreeFeatures = []string{"system-status"}

// registryFromViper assembles the feature catalog. Registration order is
// menu order.
func registryFromViper() (*bot.Registry, error) {
	reg := bot.NewRegistry()
	all := []bot.Feature{
		features.NewVerifyIdentity(),
		features.NewManageAccess(),
		features.NewLeaverCleanup(),
		features.NewAccessReview(),
		features.NewSystemStatus(version),
	}
	for _, f := range all {
		if err := reg.Register(f); err != nil {
			return nil, fmt.Errorf("feature registry: %w", err)
		}
	}
	return reg, nil
}

// backendFromViper builds the IdentityIQ client, or nil when the
// configuration is incomplete. The gateway still starts without it so
// operators can pair WhatsApp and check system status first.
func backendFromViper() *iiq.Client {
	cfg := iiq.Config{
		BaseURL:  viper.GetString("iiq.base_url"),
		Username: viper.GetString("iiq.username"),
		Password: viper.GetString("iiq.password"),
	}
	if !cfg.Valid() {
		return nil
	}
	timeout := viper.GetDuration("iiq.request_timeout")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return iiq.NewClient(cfg, &http.Client{Timeout: timeout})
}
