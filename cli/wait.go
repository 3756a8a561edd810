package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"figurineForge/models"
)

var (
	waitInterval    time.Duration
	waitMaxAttempts int
)

var waitCmd = &cobra.Command{
	Use:   "wait <task-id>",
	Short: "Poll a task until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWait,
}

func init() {
	waitCmd.Flags().DurationVar(&waitInterval, "interval", 5*time.Second, "poll interval")
	waitCmd.Flags().IntVar(&waitMaxAttempts, "max-attempts", 60, "maximum status checks before giving up")
}

func runWait(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	for attempt := 1; ; attempt++ {
		resp, err := fetchStatus(taskID)
		if err != nil {
			return err
		}

		fmt.Printf("status=%s progress=%d download=%s\n", resp.Status, resp.Progress, resp.DownloadStatus)

		if models.TaskStatus(resp.Status).Terminal() {
			if resp.DownloadStatus == string(models.DownloadFailed) {
				fmt.Println("artifact copy failed; the model url below is vendor-hosted")
			}
			if resp.ReconcileStatus == string(models.ReconcileFailed) {
				fmt.Println("figurine linkage failed; the model is stored but not in the gallery")
			}
			if resp.ModelURL != "" {
				fmt.Println(resp.ModelURL)
			}
			return exitStatus(resp)
		}

		if attempt >= waitMaxAttempts {
			fmt.Println("gave up waiting; the task may still finish")
			return ErrTaskFailed
		}

		time.Sleep(waitInterval)
	}
}
