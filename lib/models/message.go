package models

import (
	"fmt"
	"strings"
)

// MessageEntry is one item rendered into a notification batch.
type MessageEntry struct {
	Title    string
	URL      string
	ImageURL string
	Note     string
}

// MessageBatch is what the notifier boundary delivers: a heading plus an
// ordered list of entries.
type MessageBatch struct {
	Heading string
	Entries []MessageEntry
}

// Destination is a parsed destination reference, e.g. "webhook:https://..."
// or "email:ops@example.com". Platform selects the sender; Target is opaque
// to everything but that sender.
type Destination struct {
	Platform string
	Target   string
}

func ParseDestination(ref string) (Destination, error) {
	platform, target, ok := strings.Cut(ref, ":")
	if !ok || platform == "" || target == "" {
		return Destination{}, fmt.Errorf("malformed destination ref: %q", ref)
	}
	return Destination{Platform: platform, Target: target}, nil
}

func (d Destination) Ref() string {
	return d.Platform + ":" + d.Target
}
