package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd monta a CLI. Sem subcomando, roda o serve.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile, envFile string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Rate limit gateway for the Roleplay Realm API",
		Long: `gateway sits in front of the Roleplay Realm app, throttles the action
endpoints (posts, comments, servers, marketplace, events, tickets, profile)
with per-user fixed windows and proxies accepted requests upstream.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile, envFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().String("listen-addr", "", "listen address (LISTEN_ADDR)")
	root.PersistentFlags().String("upstream-url", "", "upstream Roleplay Realm URL (UPSTREAM_URL)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (LOG_LEVEL)")
	_ = v.BindPFlag("listen_addr", root.PersistentFlags().Lookup("listen-addr"))
	_ = v.BindPFlag("upstream_url", root.PersistentFlags().Lookup("upstream-url"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	serve := newServeCmd(v)
	root.AddCommand(serve, newPoliciesCmd(v))
	root.RunE = serve.RunE

	return root
}

func initConfig(v *viper.Viper, cfgFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}
