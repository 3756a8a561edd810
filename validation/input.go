package validation

import (
	"bytes"
	"encoding/base64"
	"strings"

	"figurineForge/models"
)

const MaxImageBytes = 10 * 1024 * 1024

// SubmitInput is everything a caller provides to start a conversion. Image
// input arrives either as a reference (URL or data URI) or as raw bytes with
// their MIME type.
type SubmitInput struct {
	Kind      models.TaskKind
	OwnerID   string
	ImageRef  string
	ImageData []byte
	ImageMIME string
	Prompt    string
	Config    models.GenerationConfig
}

var artStyles = map[string]bool{
	"realistic": true,
	"sculpture": true,
	"cartoon":   true,
	"lowpoly":   true,
}

var textureRichness = map[string]bool{
	"high":   true,
	"medium": true,
	"low":    true,
}

var imageMagicBytes = map[string][]byte{
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/gif":  {0x47, 0x49, 0x46, 0x38},
	"image/webp": {0x52, 0x49, 0x46, 0x46},
}

// ValidateSubmit checks the input and config before any network call is made.
func ValidateSubmit(in *SubmitInput) error {
	switch in.Kind {
	case models.KindImageTo3D:
		if err := validateImage(in); err != nil {
			return err
		}
	case models.KindTextTo3D:
		if strings.TrimSpace(in.Prompt) == "" {
			return ErrPromptRequired
		}
	default:
		return ErrUnknownKind
	}

	return validateConfig(&in.Config)
}

func validateImage(in *SubmitInput) error {
	if len(in.ImageData) > 0 {
		if int64(len(in.ImageData)) > MaxImageBytes {
			return ErrImageTooLarge
		}
		if !strings.HasPrefix(in.ImageMIME, "image/") {
			return ErrInvalidImageType
		}
		return nil
	}

	ref := strings.TrimSpace(in.ImageRef)
	if ref == "" {
		return ErrImageRequired
	}
	if strings.HasPrefix(ref, "data:") {
		return validateDataURI(ref)
	}
	return nil
}

func validateDataURI(uri string) error {
	meta, data, found := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !found {
		return ErrImageRequired
	}
	mime, _, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(mime, "image/") {
		return ErrInvalidImageType
	}
	// base64 inflates by 4/3, so the cap applies to the decoded size
	if int64(base64.StdEncoding.DecodedLen(len(data))) > MaxImageBytes {
		return ErrImageTooLarge
	}
	return nil
}

func validateConfig(cfg *models.GenerationConfig) error {
	if cfg.ArtStyle != "" && !artStyles[cfg.ArtStyle] {
		return ErrInvalidArtStyle
	}
	switch cfg.Topology {
	case "", "quad", "triangle":
	default:
		return ErrInvalidTopology
	}
	// zero means "absent, use the vendor default": after JSON decoding an
	// explicit 0 and an omitted field are the same value, so only negatives
	// are rejected
	if cfg.TargetPolycount < 0 {
		return ErrInvalidPolycount
	}
	if cfg.TextureRichness != "" && !textureRichness[cfg.TextureRichness] {
		return ErrInvalidTextureRichness
	}
	return nil
}

// DetectImageMIME sniffs the MIME type of uploaded bytes from their magic
// signature.
func DetectImageMIME(data []byte) (string, error) {
	for mime, signature := range imageMagicBytes {
		if bytes.HasPrefix(data, signature) {
			return mime, nil
		}
	}
	return "", ErrInvalidImageType
}

// DataURI encodes raw image bytes as a data URI suitable as a job source
// reference.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
