// Package moderation implements C4: the moderation provider interface,
// the closed category enumeration, and the label-flattening/normalize/
// dedup/sort pipeline shared by every provider implementation.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/imgproxy/imgproxy/internal/document"
)

// Category is the closed moderation-category enumeration (Glossary).
// Its iota order is the sort order §4.4 requires.
type Category int

const (
	ExplicitNudity Category = iota
	Suggestive
	Violence
	VisuallyDisturbing
	Rude
	Drugs
	Tobacco
	Alcohol
	Gambling
	Hate
	ExplicitContent
	DrugsAndTobacco
	Unknown
)

func (c Category) String() string {
	switch c {
	case ExplicitNudity:
		return "ExplicitNudity"
	case Suggestive:
		return "Suggestive"
	case Violence:
		return "Violence"
	case VisuallyDisturbing:
		return "VisuallyDisturbing"
	case Rude:
		return "Rude"
	case Drugs:
		return "Drugs"
	case Tobacco:
		return "Tobacco"
	case Alcohol:
		return "Alcohol"
	case Gambling:
		return "Gambling"
	case Hate:
		return "Hate"
	case ExplicitContent:
		return "ExplicitContent"
	case DrugsAndTobacco:
		return "DrugsAndTobacco"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders a Category as its wire name, used by
// img_proxy_describe/img_proxy_fetch JSON responses.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses a Category from its wire name, used when
// decoding img_proxy_report.params.categories from a client.
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for cat := ExplicitNudity; cat <= Unknown; cat++ {
		if cat.String() == name {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("moderation: unrecognized category %q", name)
}

// categoryNames maps the exact provider-facing label strings (Rekognition
// top-level moderation label names) to the closed enum, grounded on
// aws/mod.rs::normalize_category / aws/messages.rs::normalize_category,
// extended with the two newer top-level Rekognition labels ("Explicit",
// "Drugs & Tobacco") that the original's table predates.
var categoryNames = map[string]Category{
	"Explicit Nudity":     ExplicitNudity,
	"Suggestive":          Suggestive,
	"Violence":            Violence,
	"Visually Disturbing": VisuallyDisturbing,
	"Rude":                Rude,
	"Drugs":               Drugs,
	"Tobacco":             Tobacco,
	"Alcohol":             Alcohol,
	"Gambling":            Gambling,
	"Hate":                Hate,
	"Explicit":            ExplicitContent,
	"Drugs & Tobacco":     DrugsAndTobacco,
}

// Normalize maps a raw provider label name to its closed-enum category,
// logging and returning Unknown for anything not in the table.
func Normalize(logger *slog.Logger, raw string) Category {
	if cat, ok := categoryNames[raw]; ok {
		return cat
	}
	if logger != nil {
		logger.Warn("unknown moderation category encountered", "category", raw)
	}
	return Unknown
}

// RawLabel is the flattened shape every provider maps its own label
// representation onto before Normalize/Flatten run: a name plus the
// name of its parent category, if any.
type RawLabel struct {
	Name       string
	ParentName string
}

// Flatten reduces a set of hierarchical labels to the closed-enum
// categories per spec.md §4.4: for each label, take ParentName if
// non-empty, else the label's own Name (broader than the original's
// aws/messages.rs::get_labels, which drops any label whose ParentName
// is empty instead of falling back to the label itself). Duplicates
// are removed and the result is sorted in declared enum order. Unlike
// the original's Rekognition::moderate, Unknown categories are kept in
// the result rather than filtered out, since spec.md never asks for
// them to be dropped and dropping would decouple "blocked" from "the
// provider actually returned a label".
func Flatten(logger *slog.Logger, labels []RawLabel) []Category {
	seen := make(map[Category]struct{}, len(labels))
	for _, l := range labels {
		name := l.ParentName
		if name == "" {
			name = l.Name
		}
		if name == "" {
			continue
		}
		seen[Normalize(logger, name)] = struct{}{}
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProviderTag identifies which provider produced a Result, persisted
// alongside a verdict's categories.
type ProviderTag int

const (
	ProviderNone ProviderTag = iota
	ProviderAws
	ProviderUnknown
)

func (t ProviderTag) String() string {
	switch t {
	case ProviderAws:
		return "Aws"
	case ProviderNone:
		return "None"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders a ProviderTag as its wire name.
func (t ProviderTag) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Result is the outcome of one Moderate call.
type Result struct {
	Categories []Category
	Provider   ProviderTag
}

// Blocked reports whether any category was produced, the pipeline's
// blocking predicate (spec.md §4.1: "blocked iff categories is
// non-empty").
func (r Result) Blocked() bool {
	return len(r.Categories) > 0
}

// Provider is implemented by every moderation backend (AWS Rekognition
// in production, Dummy in tests).
type Provider interface {
	Moderate(ctx context.Context, doc *document.Ref) (Result, error)
	SupportedTypes() []string
	MaxDocumentSize() int64
}
