package anilist

import (
	"errors"
	"fmt"
)

// RemoteError is an application-level failure reported by AniList: a non-200
// response or a GraphQL errors array
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anilist %s failed (status %d)", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("anilist %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
}

// IsRemoteError reports whether err carries a *RemoteError
func IsRemoteError(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}

// MediaError attaches a media ID to an error chain
type MediaError struct {
	Err     error
	MediaID int
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s (media ID: %d)", e.Err.Error(), e.MediaID)
}

// Unwrap returns the underlying error
func (e *MediaError) Unwrap() error {
	return e.Err
}

// WithMediaID wraps an error with a media ID
func WithMediaID(err error, mediaID int) error {
	if err == nil {
		return nil
	}
	return &MediaError{Err: err, MediaID: mediaID}
}

// GetMediaID returns the media ID from an error if it carries one
func GetMediaID(err error) (int, bool) {
	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return mediaErr.MediaID, true
	}
	return 0, false
}
