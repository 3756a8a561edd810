package validation

import "errors"

var (
	ErrUnknownKind            = errors.New("unknown task kind")
	ErrImageRequired          = errors.New("image reference is required for image_to_3d")
	ErrPromptRequired         = errors.New("prompt is required for text_to_3d")
	ErrImageTooLarge          = errors.New("image exceeds 10MB limit")
	ErrInvalidImageType       = errors.New("image MIME type must start with image/")
	ErrInvalidArtStyle        = errors.New("unrecognized art style")
	ErrInvalidTopology        = errors.New("topology must be quad or triangle")
	ErrInvalidPolycount       = errors.New("target polycount must be a positive integer")
	ErrInvalidTextureRichness = errors.New("texture richness must be high, medium or low")
)
