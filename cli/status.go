package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"figurineForge/dto"
	"figurineForge/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Print the normalized status of a task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := fetchStatus(args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return exitStatus(resp)
}

func fetchStatus(taskID string) (*dto.TaskResponse, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: task %s not found", ErrInvalidInput, taskID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status fetch failed (%d): %s", resp.StatusCode, readError(resp.Body))
	}

	var out dto.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func exitStatus(resp *dto.TaskResponse) error {
	switch models.TaskStatus(resp.Status) {
	case models.StatusFailed:
		fmt.Fprintf(os.Stderr, "task failed: %s\n", resp.ErrorMessage)
		return ErrTaskFailed
	case models.StatusTimedOut:
		fmt.Fprintln(os.Stderr, "task timed out; it may finish later, re-check or resubmit")
		return ErrTaskFailed
	default:
		return nil
	}
}
