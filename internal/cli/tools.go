package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools discovered on each agent's MCP server",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfgFile, logLevel)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		return err
	}

	for _, bridge := range a.bridges {
		fmt.Printf("%s:\n", bridge.Name())
		if !bridge.Connected() {
			fmt.Println("  (not connected)")
			continue
		}
		tools := bridge.Tools()
		if len(tools) == 0 {
			fmt.Println("  (no tools)")
			continue
		}
		for _, tool := range tools {
			fmt.Printf("  %-30s %s\n", tool.Name, tool.Description)
		}
	}

	return nil
}
