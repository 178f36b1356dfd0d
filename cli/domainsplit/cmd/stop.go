package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop domainsplit",
	Long:  `stop a domainsplit started with --daemon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strb, err := os.ReadFile(pidFile)
		if err != nil {
			fmt.Printf("Stop server failed, err: %v\n", err)
			return nil
		}
		command := exec.Command("kill", string(strb))
		if err := command.Start(); err != nil {
			return err
		}
		if err := os.Remove(pidFile); err != nil {
			return err
		}
		fmt.Println("domainsplit stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
