package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/joshp123/electrolux-bridge/internal/config"
	"github.com/joshp123/electrolux-bridge/internal/electrolux"
	"github.com/joshp123/electrolux-bridge/internal/logging"
	"github.com/joshp123/electrolux-bridge/internal/settings"
)

var _setupCmdOpts struct {
	apiKey           string
	accessToken      string
	refreshToken     string
	scanInterval     int
	scanIntervalOnly bool
	timeout          time.Duration
}

var errInvalidCredentials = errors.New("invalid credentials")

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Validate Electrolux credentials and store them for serve",

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _setupCmdOpts.scanIntervalOnly {
			return nil
		}
		return checkRequiredFlags(cmd, "api-key", "access-token", "refresh-token")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("settings.path")
		if err != nil {
			return err
		}
		store, err := buildStore(cfg.Settings)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), _setupCmdOpts.timeout)
		defer cancel()

		if _setupCmdOpts.scanIntervalOnly {
			return updateScanInterval(ctx, store, _setupCmdOpts.scanInterval)
		}
		record, err := validateCredentials(ctx, cfg.API, setupInput{
			APIKey:       _setupCmdOpts.apiKey,
			AccessToken:  _setupCmdOpts.accessToken,
			RefreshToken: _setupCmdOpts.refreshToken,
			ScanInterval: _setupCmdOpts.scanInterval,
		}, time.Now)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, record); err != nil {
			return errors.Wrap(err, "save settings")
		}
		logging.Logger(ctx).WithField("expires", record.Expiration().Format(time.RFC3339)).
			Infof("credentials stored in %s", cfg.Settings.Path)
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&_setupCmdOpts.apiKey, "api-key", "", "API key from the Electrolux developer portal")
	setupCmd.Flags().StringVar(&_setupCmdOpts.accessToken, "access-token", "", "initial access token")
	setupCmd.Flags().StringVar(&_setupCmdOpts.refreshToken, "refresh-token", "", "initial refresh token")
	setupCmd.Flags().IntVar(&_setupCmdOpts.scanInterval, "scan-interval", settings.DefaultScanInterval, "poll interval in seconds")
	setupCmd.Flags().BoolVar(&_setupCmdOpts.scanIntervalOnly, "scan-interval-only", false, "only update the poll interval of the stored record")
	setupCmd.Flags().DurationVar(&_setupCmdOpts.timeout, "timeout", 30*time.Second, "maximum duration of the validation, eg. 1m or 10s")
	setupCmd.Flags().String("api-base-url", electrolux.DefaultBaseURL, "Electrolux API base URL")

	errPanic(v.BindPFlag("api.base_url", setupCmd.Flags().Lookup("api-base-url")))

	rootCmd.AddCommand(setupCmd)
}

func checkRequiredFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, name := range names {
		if f := cmd.Flags().Lookup(name); f == nil || f.Value.String() == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	item := "flag"
	if len(missing) > 1 {
		item = "flags"
	}
	return errors.Errorf("required %s `%s` not set", item, strings.Join(missing, "`, `"))
}

type setupInput struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	ScanInterval int
}

// validateCredentials seeds the token expiry from the access token, proves
// the credentials by listing appliances and returns the record to store.
// A token refreshed during validation replaces the supplied pair.
func validateCredentials(ctx context.Context, api config.APIConfig, in setupInput, now func() time.Time) (settings.Record, error) {
	if in.ScanInterval <= 0 {
		return settings.Record{}, errors.Errorf("scan interval must be positive: %d", in.ScanInterval)
	}

	expiry, err := electrolux.TokenExpiryFromJWT(in.AccessToken)
	if err != nil {
		logging.Logger(ctx).WithError(err).Warn("cannot read token expiry, refreshing on first use")
		expiry = now()
	}

	client, err := electrolux.NewClient(electrolux.Config{
		BaseURL: api.BaseURL,
		APIKey:  in.APIKey,
		Timeout: api.Timeout,
	}, electrolux.Token{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Expiration:   expiry,
	}, nil, electrolux.WithClock(now))
	if err != nil {
		return settings.Record{}, err
	}
	defer client.Close()

	appliances, err := client.Appliances(ctx)
	if err != nil {
		return settings.Record{}, errors.Wrapf(errInvalidCredentials, "list appliances: %v", err)
	}
	logging.Logger(ctx).WithField("appliances", len(appliances)).Info("credentials validated")

	token := client.Token()
	expiration := token.Expiration
	return settings.Record{
		APIKey:          in.APIKey,
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		TokenExpiration: &expiration,
		ScanInterval:    in.ScanInterval,
	}, nil
}

// updateScanInterval rewrites only the poll interval of the stored record.
func updateScanInterval(ctx context.Context, store settings.Store, seconds int) error {
	if seconds <= 0 {
		return errors.Errorf("scan interval must be positive: %d", seconds)
	}
	record, err := store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load settings")
	}
	record.ScanInterval = seconds
	if err := store.Save(ctx, record); err != nil {
		return errors.Wrap(err, "save settings")
	}
	logging.Logger(ctx).WithField("scan_interval", seconds).Info("poll interval updated; restart serve to apply")
	return nil
}
