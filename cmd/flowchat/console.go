package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowchat-io/flowchat/internal/version"
)

// consoleCmd runs a local REPL against the configured flow, without a server
// or database. Useful for iterating on flow files.
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the configured flow on the command line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile := newProfile()
		// The console never persists; force the keyword classifier unless a
		// remote one is configured.
		service, _, err := buildService(cmd.Context(), instanceProfile, nil)
		if err != nil {
			return err
		}

		fmt.Printf("FlowChat %s console. Type your message, Ctrl-D to quit.\n", version.GetCurrentVersion(viper.GetString("mode")))
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			message := strings.TrimSpace(scanner.Text())
			if message == "" {
				continue
			}

			out, err := service.HandleMessage(cmd.Context(), "console", "console", message)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println(out.Text)
			for _, title := range out.Button {
				fmt.Printf("  [%s]\n", title)
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
