// Package cli implements the figctl commands: submit a conversion, check a
// task's status, or wait for it to finish.
package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	ownerID   string
)

// ErrInvalidInput maps to exit code 2; ErrTaskFailed (vendor failure or
// timeout) maps to exit code 1.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTaskFailed   = errors.New("task did not succeed")
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

var rootCmd = &cobra.Command{
	Use:           "figctl",
	Short:         "Submit and track image/text to 3D conversion tasks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8081", "figurineForge server URL")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "anonymous", "owner id sent with requests")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(waitCmd)
}

// Execute runs the root command and maps errors to process exit codes:
// 0 success, 1 task failure, 2 invalid input.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, ErrInvalidInput) {
			return 2
		}
		return 1
	}
	return 0
}
