package cmd

import (
	"fmt"
	"os"

	"github.com/everFinance/domainsplit/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var cfg schema.Config

var rootCmd = &cobra.Command{
	Use:     "domainsplit",
	Short:   "domain name marketplace node",
	Long:    `domainsplit runs the domain registry, marketplace and royalty splitters behind an http api`,
	Version: "v0.1.0",
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "cfg", "", "cfg file (default is ./domainsplit.yaml)")
}

// initConfig reads the cfg file; env variables override it.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("domainsplit")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else {
		fmt.Println("can not find config file")
		panic(err)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}
}
