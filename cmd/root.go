package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/secinto/httpobservatory/internal/config"
)

var (
	cfgFile string
	appCfg  config.Config
	logger  *zap.SugaredLogger
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "httpobservatory",
	Short: "Scan a site's HTTP response headers and grade its security posture",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config file: %w", err)
			}
		}
		appCfg = config.FromViper(v)
		if !v.IsSet("persistence-path") || !v.IsSet("log-path") {
			if dataDir, err := getDataDir(); err == nil {
				if !v.IsSet("persistence-path") {
					appCfg.PersistencePath = filepath.Join(dataDir, "scans.json")
				}
				if !v.IsSet("log-path") {
					appCfg.LogPath = filepath.Join(dataDir, "httpobservatory.log")
				}
			}
		}

		l, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		logger = l.Sugar()
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		code := 1
		var ec ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (flags and env still take precedence)")
	config.BindFlags(v, rootCmd.PersistentFlags())

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
