package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabletalk",
		Short: "Ask your database questions in plain language",
		Long: `TableTalk: ask questions about your data in plain language and get back rows.

TableTalk connects to your SQL database, introspects its schema, and turns
natural-language questions into validated, read-only SELECT statements. Every
query passes a fixed battery of safety checks and role-based table access
before it touches the database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tabletalk.yaml)")

	cobra.OnInitialize(initViper)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tabletalk")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tabletalk")
	}

	viper.SetEnvPrefix("TABLETALK")
	viper.AutomaticEnv()
	viper.ReadInConfig() // config file is optional
}
