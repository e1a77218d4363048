// Package jobs builds video job records and submits them to the queue.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/pkg/errors"
)

const (
	MaxURLLen  = 2048
	MaxDateLen = 64
	MaxKeyLen  = 255

	// IDPrefixLen is how many job id characters go into final_key.
	IDPrefixLen = 8

	keyPrefix = "final-video-"
	keyExt    = ".mp4"
)

// JobRequest is the caller's submission.
type JobRequest struct {
	AudioURL string
	ImageURL string
	Date     string
}

// IDFunc returns a fresh job id: lowercase hex, at least IDPrefixLen chars.
type IDFunc func() (string, error)

// Builder turns validated requests into job records.
type Builder struct {
	newID IDFunc
}

// NewBuilder returns a Builder using newID; nil means NewJobID.
func NewBuilder(newID IDFunc) *Builder {
	if newID == nil {
		newID = NewJobID
	}
	return &Builder{newID: newID}
}

var defaultBuilder = NewBuilder(nil)

// Build validates req and assembles its record using random job ids.
func Build(req JobRequest) (v1.Record, error) {
	return defaultBuilder.Build(req)
}

// Build validates req and assembles its record. Fields are copied verbatim;
// surrounding whitespace is rejected rather than stripped.
func (b *Builder) Build(req JobRequest) (v1.Record, error) {
	audioURL, imageURL, date := req.AudioURL, req.ImageURL, req.Date

	if err := validateURL("audio_url", audioURL); err != nil {
		return v1.Record{}, err
	}
	if err := validateURL("image_url", imageURL); err != nil {
		return v1.Record{}, err
	}
	if err := validateDate(date); err != nil {
		return v1.Record{}, err
	}

	jobID, err := b.newID()
	if err != nil {
		return v1.Record{}, errors.Wrap(err, "jobs.build", "failed to generate job id")
	}
	if len(jobID) < IDPrefixLen {
		return v1.Record{}, errors.Newf(errors.CodeInternal, "job id too short: %d chars", len(jobID))
	}

	finalKey := FinalKey(date, jobID)
	if !ValidKey(finalKey) {
		return v1.Record{}, errors.ValidationField("date", "date produces an invalid object key")
	}

	return v1.Record{
		JobID:    jobID,
		AudioURL: audioURL,
		ImageURL: imageURL,
		Date:     date,
		FinalKey: finalKey,
	}, nil
}

// NewJobID returns 128 random bits as 32 lowercase hex chars.
func NewJobID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// FinalKey derives the output object key: final-video-<date>-<first 8 of job id>.mp4.
func FinalKey(date, jobID string) string {
	return keyPrefix + date + "-" + jobID[:IDPrefixLen] + keyExt
}

// ValidKey reports whether key is a flat, bounded object key made of safe characters.
func ValidKey(key string) bool {
	if key == "" || len(key) > MaxKeyLen {
		return false
	}
	if strings.HasPrefix(key, ".") || strings.Contains(key, "..") {
		return false
	}
	for _, r := range key {
		if !isSafeKeyRune(r) {
			return false
		}
	}
	return true
}

func validateURL(field, raw string) error {
	if raw == "" {
		return errors.ValidationField(field, field+" is required")
	}
	if len(raw) > MaxURLLen {
		return errors.ValidationField(field, fmt.Sprintf("%s must be at most %d bytes", field, MaxURLLen))
	}
	if hasSurroundingSpace(raw) {
		return errors.ValidationField(field, field+" must not have leading or trailing whitespace")
	}
	if !utf8.ValidString(raw) || hasControl(raw) {
		return errors.ValidationField(field, field+" contains invalid characters")
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.ValidationField(field, field+" must be an absolute http(s) URL")
	}
	return nil
}

func validateDate(date string) error {
	if date == "" {
		return errors.ValidationField("date", "date is required")
	}
	if len(date) > MaxDateLen {
		return errors.ValidationField("date", fmt.Sprintf("date must be at most %d bytes", MaxDateLen))
	}
	if hasSurroundingSpace(date) {
		return errors.ValidationField("date", "date must not have leading or trailing whitespace")
	}
	if hasControl(date) {
		return errors.ValidationField("date", "date contains invalid characters")
	}
	for _, r := range date {
		if !isSafeKeyRune(r) {
			return errors.ValidationField("date", "date may only contain letters, digits, '.', '_' and '-'")
		}
	}
	if strings.HasPrefix(date, ".") || strings.Contains(date, "..") {
		return errors.ValidationField("date", "date must not contain '..' or start with '.'")
	}
	return nil
}

func hasSurroundingSpace(s string) bool {
	return strings.TrimSpace(s) != s
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func isSafeKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
