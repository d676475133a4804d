package validate

import (
	"errors"
	"fmt"
	"strings"
)

// File validation errors
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
)

// Common MIME type categories
const (
	MIMEAudioM4A    = "audio/x-m4a"
	MIMEAudioMP4    = "audio/mp4"
	MIMEAudioAAC    = "audio/aac"
	MIMEAudioMPEG   = "audio/mpeg"
	MIMEAudioWAV    = "audio/wav"
	MIMEModelGLB    = "model/gltf-binary"
	MIMEModelGLTF   = "model/gltf+json"
	MIMEOctetStream = "application/octet-stream"
)

// AllowedAudioTypes defines allowed audio MIME types. iOS recorders
// report m4a uploads under several names; octet-stream covers clients
// that never set a type.
var AllowedAudioTypes = []string{
	MIMEAudioM4A,
	MIMEAudioMP4,
	MIMEAudioAAC,
	MIMEAudioMPEG,
	MIMEAudioWAV,
	MIMEOctetStream,
}

// AllowedModelTypes defines allowed 3D model MIME types.
var AllowedModelTypes = []string{
	MIMEModelGLB,
	MIMEModelGLTF,
	MIMEOctetStream,
}

// FileConstraints defines validation constraints for file uploads.
type FileConstraints struct {
	AllowedTypes []string // Allowed MIME types
	MaxSizeBytes int64    // Maximum file size in bytes
	MinSizeBytes int64    // Minimum file size in bytes (0 = no minimum)
}

// MIMEType validates a MIME type against allowed types.
// Returns the normalized MIME type (lowercased) and an error if invalid.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	// Normalize: trim whitespace and lowercase
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if mimeType == "" {
		return "", ErrEmpty
	}

	// Check if in allowed list
	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize validates a file size against constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}

	if constraints.MinSizeBytes > 0 && sizeBytes < constraints.MinSizeBytes {
		return fmt.Errorf("%w: got %d bytes, minimum is %d", ErrFileTooSmall, sizeBytes, constraints.MinSizeBytes)
	}

	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}

	return nil
}

// File validates both MIME type and file size.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	// Validate MIME type
	validatedType, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}

	// Validate size
	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}

	return validatedType, nil
}

// AudioFile validates a diary recording upload.
// Uses default audio constraints: allowed audio types, max 20MB.
func AudioFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedAudioTypes,
		MaxSizeBytes: 20 * 1024 * 1024, // 20MB
		MinSizeBytes: 0,
	})
}

// ModelFile validates a decoration model upload.
// Uses default model constraints: allowed model types, max 20MB.
func ModelFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedModelTypes,
		MaxSizeBytes: 20 * 1024 * 1024, // 20MB
		MinSizeBytes: 0,
	})
}
