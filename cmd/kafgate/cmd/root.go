package cmd

import (
	"github.com/spf13/cobra"
)

const logo = `
 _  __      __ ____       _
| |/ /__ _ / _/ ___| __ _| |_ ___
| ' // _' | |_| |  _ / _' | __/ _ \
| . \ (_| |  _| |_| | (_| | ||  __/
|_|\_\__,_|_|  \____|\__,_|\__\___|
`

var rootCmd = &cobra.Command{
	Use:   "kafgate",
	Short: "Multi-channel messaging gateway",
	Long:  "kafgate routes inbound messages from WhatsApp, Telegram, Slack, Discord, SMS and email through one policy-enforced bus.",
}

// Execute runs the root command; main.go is the sole caller.
func Execute() error {
	return rootCmd.Execute()
}
