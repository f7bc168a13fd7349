// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTags is returned by New when the configured tag list is empty.
var ErrNoTags = errors.New("tag list is empty")

// Half identifies which side of a pair a tag reports.
type Half int

const (
	// HalfAuto derives the role from the display name suffix. It is
	// the zero value and never returned by Pairing.
	HalfAuto Half = iota

	// HalfNone marks a tag that is exported as a plain reading.
	HalfNone
	HalfCurrent
	HalfPrevious
)

const (
	currentSuffix  = "_Current"
	previousSuffix = "_Previous"
)

func (h Half) String() string {
	switch h {
	case HalfCurrent:
		return "current"
	case HalfPrevious:
		return "previous"
	case HalfAuto:
		return "auto"
	default:
		return "none"
	}
}

// ParseHalf parses the configuration spelling of a half. The empty
// string and "auto" derive the role from the display name; "none" and
// "reading" force a plain reading.
func ParseHalf(value string) (Half, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return HalfAuto, nil
	case "none", "reading":
		return HalfNone, nil
	case "current":
		return HalfCurrent, nil
	case "previous":
		return HalfPrevious, nil
	default:
		return HalfAuto, fmt.Errorf("unknown half %q (want current, previous, none or auto)", value)
	}
}

// Definition is one configured tag. Immutable after load.
type Definition struct {
	// DisplayName is the logical key reported to sinks for readings.
	DisplayName string

	// NodeID is the transport-level identifier, e.g.
	// "ns=4;s=C2_DF_IEM_Liner_Rem_Current".
	NodeID string

	// Key overrides the pairing key derived from DisplayName.
	Key string

	// Half overrides the pairing role derived from DisplayName.
	// HalfAuto derives it; HalfNone forces a plain reading.
	Half Half
}

// Pairing returns the pairing key and role of the tag. A HalfNone
// result means the tag does not take part in pairing.
func (d Definition) Pairing() (string, Half) {
	half := d.Half
	key := d.Key
	if half == HalfAuto {
		half = HalfNone
		switch {
		case strings.HasSuffix(d.DisplayName, currentSuffix):
			half = HalfCurrent
			if key == "" {
				key = strings.TrimSuffix(d.DisplayName, currentSuffix)
			}
		case strings.HasSuffix(d.DisplayName, previousSuffix):
			half = HalfPrevious
			if key == "" {
				key = strings.TrimSuffix(d.DisplayName, previousSuffix)
			}
		}
	}
	if half == HalfNone {
		return d.DisplayName, HalfNone
	}
	if key == "" {
		key = d.DisplayName
	}
	return key, half
}

// Registry resolves node identifiers to definitions.
type Registry struct {
	definitions []Definition
}

// New builds a registry over definitions, preserving their order.
// Returns ErrNoTags for an empty list and an error for a definition
// without a node identifier.
func New(definitions []Definition) (*Registry, error) {
	if len(definitions) == 0 {
		return nil, ErrNoTags
	}
	for i, definition := range definitions {
		if strings.TrimSpace(definition.NodeID) == "" {
			return nil, fmt.Errorf("tag %d (%q): node id is required", i, definition.DisplayName)
		}
		if strings.TrimSpace(definition.DisplayName) == "" {
			return nil, fmt.Errorf("tag %d (%s): display name is required", i, definition.NodeID)
		}
	}
	copied := make([]Definition, len(definitions))
	copy(copied, definitions)
	return &Registry{definitions: copied}, nil
}

// Resolve returns the first definition subscribed under nodeID.
func (r *Registry) Resolve(nodeID string) (Definition, bool) {
	for _, definition := range r.definitions {
		if definition.NodeID == nodeID {
			return definition, true
		}
	}
	return Definition{}, false
}

// Definitions returns a copy of the configured definitions in order.
func (r *Registry) Definitions() []Definition {
	copied := make([]Definition, len(r.definitions))
	copy(copied, r.definitions)
	return copied
}

// Len returns the number of configured tags.
func (r *Registry) Len() int { return len(r.definitions) }
