package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"figurineForge/dto"
	"figurineForge/models"
)

var (
	submitPrompt    string
	submitImage     string
	submitArtStyle  string
	submitAIModel   string
	submitTopology  string
	submitPolycount int
	submitTexture   string
	submitNegative  string
	submitModerate  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new conversion task",
	Long: `Submit a new conversion task and print its task id.

Provide exactly one source: --prompt for text-to-3D, or --image with a URL
or a local file path for image-to-3D.

Examples:
  figctl submit --prompt "a red dragon"
  figctl submit --image ./photo.png --art-style sculpture
  figctl submit --image https://example.com/cat.jpg --topology quad --polycount 30000`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitPrompt, "prompt", "p", "", "text prompt for text-to-3D")
	submitCmd.Flags().StringVarP(&submitImage, "image", "i", "", "image URL or local file path for image-to-3D")
	submitCmd.Flags().StringVar(&submitArtStyle, "art-style", "", "art style (realistic, sculpture, cartoon, lowpoly)")
	submitCmd.Flags().StringVar(&submitAIModel, "ai-model", "", "vendor model name")
	submitCmd.Flags().StringVar(&submitTopology, "topology", "", "mesh topology (quad or triangle)")
	submitCmd.Flags().IntVar(&submitPolycount, "polycount", 0, "target polycount")
	submitCmd.Flags().StringVar(&submitTexture, "texture", "", "texture richness (high, medium, low)")
	submitCmd.Flags().StringVar(&submitNegative, "negative-prompt", "", "negative prompt")
	submitCmd.Flags().BoolVar(&submitModerate, "moderation", false, "enable vendor content moderation")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if (submitPrompt == "") == (submitImage == "") {
		return fmt.Errorf("%w: provide exactly one of --prompt or --image", ErrInvalidInput)
	}

	cfg := models.GenerationConfig{
		ArtStyle:        submitArtStyle,
		AIModel:         submitAIModel,
		Topology:        submitTopology,
		TargetPolycount: submitPolycount,
		TextureRichness: submitTexture,
		NegativePrompt:  submitNegative,
		Moderation:      submitModerate,
	}

	var resp *dto.TaskResponse
	var err error
	if submitImage != "" && fileExists(submitImage) {
		resp, err = submitUpload(submitImage, cfg)
	} else {
		resp, err = submitJSON(cfg)
	}
	if err != nil {
		return err
	}

	fmt.Println(resp.TaskID)
	return nil
}

func submitJSON(cfg models.GenerationConfig) (*dto.TaskResponse, error) {
	req := dto.SubmitRequest{Config: cfg}
	if submitPrompt != "" {
		req.Kind = string(models.KindTextTo3D)
		req.Prompt = submitPrompt
	} else {
		req.Kind = string(models.KindImageTo3D)
		req.ImageURL = submitImage
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return postTask("application/json", bytes.NewReader(body))
}

func submitUpload(path string, cfg models.GenerationConfig) (*dto.TaskResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", path)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"art_style":        cfg.ArtStyle,
		"ai_model":         cfg.AIModel,
		"topology":         cfg.Topology,
		"texture_richness": cfg.TextureRichness,
		"negative_prompt":  cfg.NegativePrompt,
	}
	if cfg.TargetPolycount > 0 {
		fields["target_polycount"] = fmt.Sprintf("%d", cfg.TargetPolycount)
	}
	if cfg.Moderation {
		fields["moderation"] = "true"
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return postTask(writer.FormDataContentType(), &buf)
}

func postTask(contentType string, body io.Reader) (*dto.TaskResponse, error) {
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(serverURL, "/")+"/tasks", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Owner-ID", ownerID)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, readError(resp.Body))
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("submit failed (%d): %s", resp.StatusCode, readError(resp.Body))
	}

	var out dto.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func readError(r io.Reader) string {
	var e dto.ErrorResponse
	if err := json.NewDecoder(r).Decode(&e); err == nil && e.Error != "" {
		return e.Error
	}
	return "unknown error"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
