package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "locatorcheck",
	Short: "Verify XPath locators inside an embedded page",
	Long: `locatorcheck highlights the element a locator resolves to inside the page shown in a host
application's iframe. It drives the host page over the Chrome DevTools Protocol and falls back
from direct access to cross-document messaging, a same-origin proxy and finally manual execution.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (defaults to $LOCATORCHECK_CONFIG)")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(scriptCmd())
	rootCmd.AddCommand(targetsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
