// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that end up embedded in storage keys.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRunID is returned when a run identifier fails validation.
var ErrInvalidRunID = errors.New("invalid run id")

// runIDPattern allows 1-128 characters: letters, digits, dots, underscores
// and hyphens, starting with a letter or digit. The ':' separator used in
// checkpoint keys is never allowed.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateRunID reports whether id is safe to use as a run identifier.
//
// Example:
//
//	if err := validation.ValidateRunID(id); err != nil {
//	    return fmt.Errorf("run: %w", err)
//	}
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidRunID)
	}
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (must be 1-128 letters, digits, dots, underscores or hyphens)", ErrInvalidRunID, id)
	}
	return nil
}

// ValidateRunIDs validates several identifiers and lists every invalid one.
func ValidateRunIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if ValidateRunID(id) != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, invalid)
	}
	return nil
}

// SanitizeRunID trims surrounding whitespace and validates the result.
func SanitizeRunID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := ValidateRunID(id); err != nil {
		return "", err
	}
	return id, nil
}
