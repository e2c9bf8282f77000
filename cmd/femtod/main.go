package main

import (
	"encoding/json"
	"fmt"
	"os"

	femto "github.com/femtowallet/femtowallet/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Load config
	var configPath string
	var config femto.Config

	LoadConfig(configPath, &config)

	// define root command
	rootCmd := &cobra.Command{
		Use: "femtod",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Add flags for each configuration option
	rootCmd.PersistentFlags().StringVar(&config.Femto.Network, "network", "", "Network (mainnet, testnet, regtest)")
	rootCmd.PersistentFlags().StringVar(&config.Femto.Descriptor, "descriptor", "", "Wallet descriptor")
	rootCmd.PersistentFlags().StringVar(&config.Store.Driver, "store-driver", "", "Store driver (sqlite or bolt)")
	rootCmd.PersistentFlags().StringVar(&config.Store.DBFile, "store-db-file", "", "Store DB file")
	rootCmd.PersistentFlags().StringVar(&config.Core.RPCHost, "core-rpc-host", "", "Core RPC host")
	rootCmd.PersistentFlags().IntVar(&config.Core.RPCPort, "core-rpc-port", 0, "Core RPC port")
	rootCmd.PersistentFlags().IntVar(&config.Core.ZMQPort, "core-zmq-port", 0, "Core ZMQ port")
	rootCmd.PersistentFlags().StringVar(&config.Bridge.RPCHost, "bridge-rpc-host", "", "Bridge RPC host")
	rootCmd.PersistentFlags().IntVar(&config.Bridge.RPCPort, "bridge-rpc-port", 0, "Bridge RPC port")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Bind, "webapi-bind", "", "Web API bind")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Port, "webapi-port", "", "Web API port")
	// Bind flags to config fields
	viper.BindPFlags(rootCmd.PersistentFlags())

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the femtowallet server",
		Run: func(cmd *cobra.Command, args []string) {
			Server(config)
		},
	}

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)

	// Execute the Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}

}

func LoadConfig(configPath string, config *femto.Config) {

	configFileName, set := os.LookupEnv("FEMTO_ENV")
	if set {
		viper.SetConfigName(configFileName)
	} else {
		viper.SetConfigName("config")
	}

	// Set config file name and search paths
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/femtowallet/")
	viper.AddConfigPath("$HOME/.femtowallet")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("failed to find config file: ", err)
		os.Exit(1)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %s", err))
	}
}
