// The cmd package implements the pductl CLI. Commands only parse
// arguments and configuration; the work happens in pkg/pdu (talking to a
// PDU directly) and pkg/daemon (serving PDUs over HTTP).
//
//	cmd/daemon.go    --> pkg/daemon ( daemon.Run() )
//	cmd/outlet.go    --> pkg/pdu ( Controller.GetOutletState() etc. )
//	cmd/inventory.go --> pkg/pdu ( Controller.Inventory() )
//	cmd/history.go   --> internal/cache/sqlite
//	cmd/secrets.go   --> pkg/secrets
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OpenCHAMI/pductl/internal/config"
	"github.com/OpenCHAMI/pductl/internal/format"
	logger "github.com/OpenCHAMI/pductl/internal/log"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel     = logger.INFO
	outputFormat = format.FORMAT_LIST
)

// The `root` command doesn't do anything on it's own except display
// a help message and then exits.
var rootCmd = &cobra.Command{
	Use:   "pductl",
	Short: "HTTP bridge for serial-console PDUs",
	Long:  "Controls the outlets of Cyclades-style PDUs attached to serial ports, directly or through a long-running HTTP daemon.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.InitWithLogLevel(logLevel, viper.GetString("log-file"))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			err := cmd.Help()
			if err != nil {
				log.Error().Err(err).Msg("failed to print help")
			}
			os.Exit(0)
		}
	},
}

// This Execute() function is called from main to run the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())
	cobra.OnInitialize(InitializeConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Set the config file path")
	rootCmd.PersistentFlags().VarP(&logLevel, "log-level", "l", fmt.Sprintf("Set the log level %v", logger.Levels))
	rootCmd.PersistentFlags().String("log-file", "", "Append log output to this file")
	rootCmd.PersistentFlags().IntP("concurrency", "j", -1, "Set the number of PDUs queried at once")
	rootCmd.PersistentFlags().VarP(&outputFormat, "format", "F", fmt.Sprintf("Set the output format %v", format.Formats))
	rootCmd.PersistentFlags().String("secrets-file", "", "Look up PDU logins in this secrets store")
	rootCmd.PersistentFlags().String("history-file", "", "Sqlite database of outlet changes made through the daemon")
	rootCmd.PersistentFlags().String("daemon-url", "", "Send outlet commands to this pductl daemon instead of the serial port")
	rootCmd.PersistentFlags().String("daemon-token", "", "Bearer token for --daemon-url")
	rootCmd.PersistentFlags().String("cacert", "", "CA certificate for --daemon-url (defaults to system CAs)")

	checkBindFlagError(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))
	checkBindFlagError(viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")))
	checkBindFlagError(viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency")))
	checkBindFlagError(viper.BindPFlag("output-format", rootCmd.PersistentFlags().Lookup("format")))
	checkBindFlagError(viper.BindPFlag("secrets.file", rootCmd.PersistentFlags().Lookup("secrets-file")))
	checkBindFlagError(viper.BindPFlag("history.file", rootCmd.PersistentFlags().Lookup("history-file")))
	checkBindFlagError(viper.BindPFlag("client.url", rootCmd.PersistentFlags().Lookup("daemon-url")))
	checkBindFlagError(viper.BindPFlag("client.token", rootCmd.PersistentFlags().Lookup("daemon-token")))
	checkBindFlagError(viper.BindPFlag("client.cacert", rootCmd.PersistentFlags().Lookup("cacert")))
}

func checkBindFlagError(err error) {
	if err != nil {
		log.Error().Err(err).Msg("failed to bind cobra/viper flag")
	}
}

// addFlag defines a flag on cmd whose type follows value and binds it to
// the viper key, so it can also be set from the config file.
func addFlag(key string, cmd *cobra.Command, name, shorthand string, value any, usage string) {
	flags := cmd.Flags()
	switch v := value.(type) {
	case string:
		flags.StringP(name, shorthand, v, usage)
	case int:
		flags.IntP(name, shorthand, v, usage)
	case bool:
		flags.BoolP(name, shorthand, v, usage)
	case time.Duration:
		flags.DurationP(name, shorthand, v, usage)
	case []string:
		flags.StringSliceP(name, shorthand, v, usage)
	default:
		panic(fmt.Sprintf("addFlag: unsupported type %T for --%s", value, name))
	}
	checkBindFlagError(viper.BindPFlag(key, flags.Lookup(name)))
}

// InitializeConfig() loads the config file given by --config, or
// $XDG_CONFIG_HOME/pductl/config.* if it exists.
func InitializeConfig() {
	viper.SetEnvPrefix("PDUCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if path := viper.GetString("config"); path != "" {
		if err := config.LoadFile(viper.GetViper(), path); err != nil {
			log.Error().Err(err).Msg("failed to load config")
		}
		return
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = "$HOME/.config"
	}
	viper.AddConfigPath(configDir + "/pductl")
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debug().Msg("no config file found; using defaults")
			return
		}
		log.Error().Err(err).Msg("failed to load config")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
