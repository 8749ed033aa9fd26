// Package captions builds the subtitle burn-in overlay applied to the
// concatenated video stream.
package captions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maauso/scene-assembler/internal/filtergraph"
)

// Style names accepted in a render request.
const (
	StyleNone     = "none"
	StyleJustText = "just_text"
	StyleLineBox  = "line_box"
	StyleWordBox  = "word_box"
)

// DefaultStyle is used for any unrecognized style name.
const DefaultStyle = StyleLineBox

// ASS colors are &HAABBGGRR.
const (
	colorWhite       = "&H00FFFFFF"
	colorBlack       = "&H00000000"
	colorTranslucent = "&H80000000"
)

// ASS BorderStyle values.
const (
	borderOutline     = 1
	borderOpaqueBox   = 3
	alignBottomCenter = 2
)

// Preset is a fixed set of subtitle rendering parameters.
type Preset struct {
	Name          string
	FontName      string
	FontSize      int
	Bold          bool
	PrimaryColour string
	OutlineColour string
	BackColour    string
	BorderStyle   int
	Outline       int
	Shadow        int
	MarginV       int
}

var presets = map[string]Preset{
	StyleJustText: {
		Name:          StyleJustText,
		FontName:      "Arial",
		FontSize:      24,
		Bold:          true,
		PrimaryColour: colorWhite,
		OutlineColour: colorBlack,
		BackColour:    colorTranslucent,
		BorderStyle:   borderOutline,
		Outline:       2,
		Shadow:        1,
		MarginV:       60,
	},
	StyleLineBox: {
		Name:          StyleLineBox,
		FontName:      "Arial",
		FontSize:      22,
		PrimaryColour: colorWhite,
		OutlineColour: colorTranslucent,
		BackColour:    colorTranslucent,
		BorderStyle:   borderOpaqueBox,
		Outline:       6,
		Shadow:        0,
		MarginV:       50,
	},
	StyleWordBox: {
		Name:          StyleWordBox,
		FontName:      "Arial",
		FontSize:      26,
		Bold:          true,
		PrimaryColour: colorWhite,
		OutlineColour: colorBlack,
		BackColour:    colorBlack,
		BorderStyle:   borderOpaqueBox,
		Outline:       3,
		Shadow:        0,
		MarginV:       70,
	},
}

// Resolve returns the preset for name, falling back to DefaultStyle.
func Resolve(name string) Preset {
	if p, ok := presets[name]; ok {
		return p
	}
	return presets[DefaultStyle]
}

// Presets returns all known presets sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled reports whether a caption overlay should be produced.
func Enabled(fileURL, style string) bool {
	return fileURL != "" && style != "" && style != StyleNone
}

// ForceStyle renders the preset as a libass force_style string.
func (p Preset) ForceStyle() string {
	bold := 0
	if p.Bold {
		bold = 1
	}
	fields := []string{
		"FontName=" + p.FontName,
		fmt.Sprintf("FontSize=%d", p.FontSize),
		fmt.Sprintf("Bold=%d", bold),
		"PrimaryColour=" + p.PrimaryColour,
		"OutlineColour=" + p.OutlineColour,
		"BackColour=" + p.BackColour,
		fmt.Sprintf("BorderStyle=%d", p.BorderStyle),
		fmt.Sprintf("Outline=%d", p.Outline),
		fmt.Sprintf("Shadow=%d", p.Shadow),
		fmt.Sprintf("Alignment=%d", alignBottomCenter),
		fmt.Sprintf("MarginV=%d", p.MarginV),
	}
	return strings.Join(fields, ",")
}

// Overlay is a subtitle burn-in applied to a labeled video stream.
type Overlay struct {
	Preset Preset
	Filter filtergraph.Filter
}

// Build returns the overlay for captionsPath and style, or nil when style is
// empty or "none". The path is escaped by the filter graph serializer.
func Build(captionsPath, style string) *Overlay {
	if !Enabled(captionsPath, style) {
		return nil
	}
	p := Resolve(style)
	return &Overlay{
		Preset: p,
		Filter: filtergraph.New("subtitles").
			With("filename", captionsPath).
			With("force_style", p.ForceStyle()),
	}
}

// Chain applies the overlay to the in stream and writes it to out.
func (o *Overlay) Chain(in, out string) filtergraph.Chain {
	return filtergraph.Chain{
		Inputs:  []string{in},
		Filters: []filtergraph.Filter{o.Filter},
		Outputs: []string{out},
	}
}
