package codec

import (
	"path/filepath"
	"sort"
	"strings"
)

// Registry maps formats to codecs. The zero value is an empty registry. It has no locking: register everything up front,
// then share it read-only between concurrent operations.
type Registry struct {
	codecs map[Format]Codec
}

// NewRegistry returns a registry holding codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: map[Format]Codec{}}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns a fresh registry with every built-in codec.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewJSON(),
		NewYAML(),
		NewNDJSON(),
		NewCSV(),
		NewSpreadsheet(),
		NewMarkdown(),
	)
}

// Register adds c, replacing any codec already registered for its format.
func (r *Registry) Register(c Codec) {
	if c == nil {
		return
	}
	if r.codecs == nil {
		r.codecs = map[Format]Codec{}
	}
	r.codecs[c.Descriptor().Format] = c
}

// Unregister removes format and reports whether it was present.
func (r *Registry) Unregister(format Format) bool {
	if _, ok := r.codecs[format]; !ok {
		return false
	}
	delete(r.codecs, format)
	return true
}

func (r *Registry) ByFormat(format Format) (Codec, bool) {
	c, ok := r.codecs[format]
	return c, ok
}

// ByExtension matches ext with or without its leading dot, case-insensitively.
func (r *Registry) ByExtension(ext string) (Codec, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return nil, false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, f := range r.Formats() {
		c := r.codecs[f]
		for _, e := range c.Descriptor().Extensions {
			if strings.EqualFold(e, ext) {
				return c, true
			}
		}
	}
	return nil, false
}

// ByMIMEType ignores MIME parameters such as charset.
func (r *Registry) ByMIMEType(mimeType string) (Codec, bool) {
	mt := baseMediaType(mimeType)
	if mt == "" {
		return nil, false
	}
	for _, f := range r.Formats() {
		c := r.codecs[f]
		for _, m := range c.Descriptor().MIMETypes {
			if strings.EqualFold(m, mt) {
				return c, true
			}
		}
	}
	return nil, false
}

// Exporter returns the codec for format when it can export.
func (r *Registry) Exporter(format Format) (Exporter, bool) {
	c, ok := r.codecs[format]
	if !ok {
		return nil, false
	}
	e, ok := c.(Exporter)
	return e, ok
}

// Importer returns the codec for format when it can import.
func (r *Registry) Importer(format Format) (Importer, bool) {
	c, ok := r.codecs[format]
	if !ok {
		return nil, false
	}
	i, ok := c.(Importer)
	return i, ok
}

// DetectFormat tries the file's MIME type first, then its extension. ok is false when
// neither matches.
func (r *Registry) DetectFormat(f File) (Format, bool) {
	if f == nil {
		return "", false
	}
	if c, ok := r.ByMIMEType(f.Type()); ok {
		return c.Descriptor().Format, true
	}
	if c, ok := r.ByExtension(filepath.Ext(f.Name())); ok {
		return c.Descriptor().Format, true
	}
	return "", false
}

// Formats lists registered formats in sorted order.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptors lists every registered codec's descriptor in format order.
func (r *Registry) Descriptors() []Descriptor {
	formats := r.Formats()
	out := make([]Descriptor, 0, len(formats))
	for _, f := range formats {
		out = append(out, r.codecs[f].Descriptor())
	}
	return out
}
