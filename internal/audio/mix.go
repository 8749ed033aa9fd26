// Package audio builds the audio mixing graph for a render: one narration
// branch plus zero or more timed background-music branches.
package audio

import (
	"fmt"
	"math"
	"strconv"

	"github.com/maauso/scene-assembler/internal/filtergraph"
)

// Canonical audio format every branch is converted to before mixing.
const (
	SampleRate    = 44100
	ChannelLayout = "stereo"
	SampleFormat  = "fltp"
)

// Labels used in the produced graph.
const (
	NarrationLabel = "nar"
	OutputLabel    = "aout"
)

// DropoutTransitionSec is the amix dropout transition in seconds.
const DropoutTransitionSec = 2

// DefaultMusicVolume is the linear gain applied to music when none is given.
const DefaultMusicVolume = 0.08

// Segment is one background-music clip placed on the timeline.
type Segment struct {
	// Path is the local path of the downloaded music file.
	Path string
	// StartTime is the offset in seconds at which the segment starts.
	StartTime float64
	// Duration is the segment length in seconds.
	Duration float64
	// FadeIn is the fade-in length in seconds from the segment start.
	FadeIn float64
	// FadeOut is the fade-out length in seconds ending at the segment end.
	FadeOut float64
}

// BranchKind distinguishes narration from music branches.
type BranchKind string

const (
	// BranchNarration is the narration branch; always first.
	BranchNarration BranchKind = "narration"
	// BranchMusic is a background-music branch.
	BranchMusic BranchKind = "music"
)

// Branch is one input stream of the mix.
type Branch struct {
	Kind BranchKind
	// Label is the output pad of the branch chain.
	Label string
	// InputIndex is the ffmpeg input index the branch reads from.
	InputIndex int
	// FadeOutStart is max(0, duration - fade_out); music only.
	FadeOutStart float64
	// DelayMs is round(start_time*1000); music only.
	DelayMs int64
}

// MixOpts configures how the mix graph maps onto ffmpeg inputs.
type MixOpts struct {
	// NarrationInput is the ffmpeg input index of the narration file.
	NarrationInput int
	// FirstMusicInput is the ffmpeg input index of the first music file;
	// music segment i is read from FirstMusicInput+i.
	FirstMusicInput int
	// MusicVolume is the linear gain applied to every music branch.
	MusicVolume float64
}

// DefaultMixOpts returns the input layout used by the assembly command:
// input 0 is the concatenated video, 1 the narration, 2.. the music files.
func DefaultMixOpts() MixOpts {
	return MixOpts{
		NarrationInput:  1,
		FirstMusicInput: 2,
		MusicVolume:     DefaultMusicVolume,
	}
}

// MixPlan is the typed result of building the audio graph.
type MixPlan struct {
	// Branches are in mix order: narration first, then music in request order.
	Branches []Branch
	// Mixed reports whether an amix stage is present.
	Mixed bool
	// Graph is the complete audio filter graph ending at OutputLabel.
	Graph filtergraph.Graph
}

// Labels returns the branch labels in mix order.
func (p MixPlan) Labels() []string {
	labels := make([]string, len(p.Branches))
	for i, b := range p.Branches {
		labels[i] = b.Label
	}
	return labels
}

// BuildMix builds the mixing graph for narration plus music segments.
//
// With no segments the formatted narration is renamed to OutputLabel and no
// mix stage is added. Otherwise all branches feed amix with duration=first,
// so the narration length governs the output length.
func BuildMix(segments []Segment, opts MixOpts) MixPlan {
	var plan MixPlan

	plan.Branches = append(plan.Branches, Branch{
		Kind:       BranchNarration,
		Label:      NarrationLabel,
		InputIndex: opts.NarrationInput,
	})
	plan.Graph.Add(filtergraph.Chain{
		Inputs:  []string{streamSpec(opts.NarrationInput)},
		Filters: []filtergraph.Filter{formatFilter()},
		Outputs: []string{NarrationLabel},
	})

	for i, seg := range segments {
		b := Branch{
			Kind:         BranchMusic,
			Label:        fmt.Sprintf("m%d", i),
			InputIndex:   opts.FirstMusicInput + i,
			FadeOutStart: math.Max(0, seg.Duration-seg.FadeOut),
			DelayMs:      int64(math.Round(seg.StartTime * 1000)),
		}
		plan.Branches = append(plan.Branches, b)
		plan.Graph.Add(filtergraph.Chain{
			Inputs:  []string{streamSpec(b.InputIndex)},
			Filters: musicFilters(seg, b, opts.MusicVolume),
			Outputs: []string{b.Label},
		})
	}

	if len(plan.Branches) == 1 {
		plan.Graph.Add(filtergraph.Chain{
			Inputs:  []string{NarrationLabel},
			Filters: []filtergraph.Filter{filtergraph.New("anull")},
			Outputs: []string{OutputLabel},
		})
		return plan
	}

	plan.Mixed = true
	plan.Graph.Add(filtergraph.Chain{
		Inputs: plan.Labels(),
		Filters: []filtergraph.Filter{
			filtergraph.New("amix").
				With("inputs", strconv.Itoa(len(plan.Branches))).
				With("duration", "first").
				With("dropout_transition", strconv.Itoa(DropoutTransitionSec)),
		},
		Outputs: []string{OutputLabel},
	})
	return plan
}

func musicFilters(seg Segment, b Branch, volume float64) []filtergraph.Filter {
	filters := []filtergraph.Filter{
		formatFilter(),
		filtergraph.New("volume", formatFloat(volume)),
	}
	if seg.FadeIn > 0 {
		filters = append(filters, filtergraph.New("afade").
			With("t", "in").
			With("st", "0").
			With("d", formatFloat(seg.FadeIn)))
	}
	if seg.FadeOut > 0 {
		filters = append(filters, filtergraph.New("afade").
			With("t", "out").
			With("st", formatFloat(b.FadeOutStart)).
			With("d", formatFloat(seg.FadeOut)))
	}
	if seg.StartTime > 0 {
		// One delay per channel of the stereo layout.
		delay := strconv.FormatInt(b.DelayMs, 10)
		filters = append(filters, filtergraph.New("adelay").With("delays", delay+"|"+delay))
	}
	return filters
}

func formatFilter() filtergraph.Filter {
	return filtergraph.New("aformat").
		With("sample_fmts", SampleFormat).
		With("sample_rates", strconv.Itoa(SampleRate)).
		With("channel_layouts", ChannelLayout)
}

func streamSpec(input int) string {
	return strconv.Itoa(input) + ":a"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
