package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "rowlock",
	Short: "distributed mutexes on a key-value table",
	Long: fmt.Sprintf(`rowlock (v%s)

Client-side distributed mutexes built on conditional writes against a
key-value table, plus a table server (memory, bolt or raft backed).`, Version),
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rowlock v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mutexCmd)
	rootCmd.AddCommand(versionCmd)
}

// flags can also be set as ROWLOCK_<FLAG> in the environment or a .env file
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("rowlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "rowlock",
		Level:      hclog.LevelFromString(viper.GetString("log-level")),
		JSONFormat: viper.GetBool("log-json"),
		Output:     os.Stderr,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
