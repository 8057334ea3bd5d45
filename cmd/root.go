package cmd

import (
	"fmt"
	"os"

	"github.com/creditstudio/CreditStudio/internal/app"
	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

type options struct {
	configPath string
	envFile    string
}

// loadEnv applies an env file before the config path is resolved. The default .env is optional.
func (o *options) loadEnv() error {
	path := o.envFile
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (o *options) appConfig() config.AppConfig {
	return config.AppConfig{ConfigPath: o.configPath}
}

func (o *options) loadConfig() (*config.Config, error) {
	return config.LoadConfig(config.ResolveConfigPath(o.configPath))
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "creditstudio",
		Short:        "Credit-metered AI generation service",
		Long:         "creditstudio prices AI generations in platform credits, keeps each user's credit ledger and drives multi-step generation workflows.",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.loadEnv()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CREDITSTUDIO_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file loaded before the config (default ./.env when present)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newCreditsCmd(opts),
		newQuoteCmd(opts),
		newTokenCmd(opts),
		newCatalogCmd(opts),
	)

	return rootCmd
}

// withRuntime boots a runtime for a one-shot command and closes it afterwards.
func withRuntime(cmd *cobra.Command, opts *options, fn func(rt *app.Runtime) error) error {
	rt, err := app.Bootstrap(cmd.Context(), opts.appConfig())
	if err != nil {
		return err
	}
	defer func() {
		if errClose := rt.Close(); errClose != nil {
			log.WithError(errClose).Warn("close runtime")
		}
	}()
	return fn(rt)
}
