package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vivek100/dashwizard/internal/cache"
	"github.com/vivek100/dashwizard/internal/remote"
	syncmgr "github.com/vivek100/dashwizard/internal/sync"
)

var (
	cfgFile string
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "dw",
	Short: "DashWizard local-first dashboard sync engine",
	Long: `dw manages the local-first dashboard cache and its background
synchronization with the remote dashboard service.

All dashboard edits land in the local cache first and sync to the remote
in the background; dw works fully offline and reconciles when
connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.dashwizard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default $HOME/.dashwizard)")
	rootCmd.PersistentFlags().String("remote-url", "", "remote dashboard service base URL")
	rootCmd.PersistentFlags().String("user", "", "user id scoping the local cache (empty = anonymous)")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("remote.url", rootCmd.PersistentFlags().Lookup("remote-url"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".dashwizard"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("remote.url", "http://localhost:8080")
	viper.SetDefault("sync.full_interval", "5m")
	viper.SetDefault("sync.max_attempts", 5)
	viper.SetDefault("events.port", 8090)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// dataDir resolves the engine's data directory, creating it if needed.
func dataDir() (string, error) {
	dir := viper.GetString("data_dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".dashwizard")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// newLogger builds the process logger, rotating to a file when
// --log-file is set.
func newLogger(prefix string) *log.Logger {
	if logFile != "" {
		return log.New(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}, prefix, log.LstdFlags)
	}
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// engine bundles the wired-up components a command needs.
type engine struct {
	db    *cache.DB
	mgr   *syncmgr.Manager
	scope string
}

func (e *engine) close() {
	e.mgr.Stop()
	_ = e.db.Close()
}

// openEngine opens the cache database and wires the sync manager from
// configuration. The manager is not started; commands decide whether
// they need the background worker.
func openEngine(logger *log.Logger) (*engine, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}

	db, err := cache.Open(filepath.Join(dir, "dashwizard.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	scope := viper.GetString("user")
	session := remote.StaticSession(viper.GetString("remote.token"))
	client := remote.NewHTTPClient(viper.GetString("remote.url"), session, nil)

	cfg := syncmgr.DefaultConfig()
	cfg.Logger = logger
	if d := viper.GetDuration("sync.full_interval"); d > 0 {
		cfg.FullSyncInterval = d
	}
	if n := viper.GetInt("sync.max_attempts"); n > 0 {
		cfg.MaxAttempts = n
	}

	mgr := syncmgr.NewManager(db, client, session, scope, cfg)

	return &engine{db: db, mgr: mgr, scope: scope}, nil
}
