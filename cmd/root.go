package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the base command; subcommands carry the actual operations.
var rootCmd = &cobra.Command{
	Use:   "panelcore",
	Short: "Versioned gene panel curation engine",
	Long: `panelcore manages clinical gene panels: versioned snapshots of gene,
STR, and region entries with their evidence and reviews, batch uploads,
gene catalog revisions, and release sign-off.`,
	PersistentPreRunE: bootstrap,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.panelcore.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text|json")
	rootCmd.PersistentFlags().String("user", "admin", "acting curator username")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func bootstrap(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".panelcore")
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("PANELCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The default config file is optional; one named explicitly is not.
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		return fmt.Errorf("read config: %w", err)
	}

	if err := initLogging(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
		return err
	}
	promoteStorageConfig()
	return nil
}

func initLogging(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// promoteStorageConfig copies storage keys from the config file into the
// environment the store openers read, so file config and env vars behave the
// same.
func promoteStorageConfig() {
	for key, env := range map[string]string{
		"storage_driver": "PANELCORE_STORAGE_DRIVER",
		"sqlite_path":    "PANELCORE_SQLITE_PATH",
		"postgres_dsn":   "PANELCORE_POSTGRES_DSN",
		"blob_driver":    "PANELCORE_BLOB_DRIVER",
		"blob_fs_root":   "PANELCORE_BLOB_FS_ROOT",
	} {
		if os.Getenv(env) != "" {
			continue
		}
		if value := viper.GetString(key); value != "" {
			_ = os.Setenv(env, value)
		}
	}
}
