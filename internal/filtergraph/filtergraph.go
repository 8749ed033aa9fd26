// Package filtergraph provides a typed representation of ffmpeg filter graphs.
// Graphs are assembled from chains of filters with labeled pads and serialized
// to ffmpeg's textual syntax in a single place, so escaping of option values
// (file paths, style strings) is applied uniformly.
package filtergraph

import "strings"

// Arg is a single filter option. An empty Key denotes a positional value.
type Arg struct {
	Key   string
	Value string
}

// Filter is one filter invocation, e.g. volume=0.08.
type Filter struct {
	Name string
	Args []Arg
}

// New creates a Filter with positional arguments.
func New(name string, positional ...string) Filter {
	f := Filter{Name: name}
	for _, v := range positional {
		f.Args = append(f.Args, Arg{Value: v})
	}
	return f
}

// With appends a key=value option and returns the filter.
func (f Filter) With(key, value string) Filter {
	f.Args = append(f.Args, Arg{Key: key, Value: value})
	return f
}

// String serializes the filter, escaping every option value.
func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		v := EscapeValue(a.Value)
		if a.Key != "" {
			v = a.Key + "=" + v
		}
		parts = append(parts, v)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear sequence of filters between labeled input and output pads.
// Unlabeled chains are valid for simple (-vf / -af) graphs.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// String serializes the chain as [in]f1,f2[out].
func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Graph is an ordered set of chains.
type Graph struct {
	Chains []Chain
}

// Add appends a chain to the graph.
func (g *Graph) Add(c Chain) {
	g.Chains = append(g.Chains, c)
}

// Empty reports whether the graph has no chains.
func (g Graph) Empty() bool {
	return len(g.Chains) == 0
}

// Merge returns a graph containing the chains of g followed by those of other.
func (g Graph) Merge(other Graph) Graph {
	chains := make([]Chain, 0, len(g.Chains)+len(other.Chains))
	chains = append(chains, g.Chains...)
	chains = append(chains, other.Chains...)
	return Graph{Chains: chains}
}

// String serializes the graph with chains separated by ';'.
func (g Graph) String() string {
	parts := make([]string, 0, len(g.Chains))
	for _, c := range g.Chains {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ";")
}

// EscapeValue escapes an option value for embedding in a filter graph.
//
// ffmpeg parses filter graphs at two levels: the option list of a single
// filter (':' separates options) and the graph itself (',' ';' '[' ']'
// separate filters and pads). The value is escaped for the option level
// first, then for the graph level, so quotes and colons in file paths
// survive both passes.
func EscapeValue(v string) string {
	if v == "" {
		return v
	}
	return escape(escape(v, `\':`), `\'[],;`)
}

func escape(v, special string) string {
	if !strings.ContainsAny(v, special) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 8)
	for _, r := range v {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
