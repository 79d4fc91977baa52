package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "powconsensusd",
	Short: "A proof-of-work consensus engine host",
	Long: `powconsensusd runs a proof-of-work consensus engine: a block publisher
that drives solver subprocesses toward a retargeting difficulty, a block
verifier, and a fork resolver, fronted by a small status RPC.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.powconsensusd.yaml)")
	rootCmd.PersistentFlags().String("datadir", "./data", "data directory for chain and settings storage")
	rootCmd.PersistentFlags().Int("rpcport", 8545, "status RPC port")
	rootCmd.PersistentFlags().String("rpcaddr", "127.0.0.1", "status RPC address")
	rootCmd.PersistentFlags().String("solver_path", "powsolver", "path to the solver subprocess binary")

	viper.BindPFlag("datadir", rootCmd.PersistentFlags().Lookup("datadir"))
	viper.BindPFlag("rpcport", rootCmd.PersistentFlags().Lookup("rpcport"))
	viper.BindPFlag("rpcaddr", rootCmd.PersistentFlags().Lookup("rpcaddr"))
	viper.BindPFlag("solver_path", rootCmd.PersistentFlags().Lookup("solver_path"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".powconsensusd")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
