// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Source produces interleaved float32 samples in [-1, 1].
type Source interface {
	// SampleRate in Hz.
	SampleRate() int
	// Channels per frame.
	Channels() int
	// ReadSamples fills dst with whole frames and returns the number of
	// samples written. The last samples may come together with io.EOF.
	ReadSamples(dst []float32) (n int, err error)
	Close() error
}

// Decoder turns an encoded stream into a Source.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry maps format names and file extensions to decoders.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Decoder
	byExt  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		byExt:  make(map[string]string),
	}
}

// Register adds d under name and, optionally, the file extensions it reads
// (with or without the leading dot). A later registration replaces an
// earlier one.
func (r *Registry) Register(name string, d Decoder, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs[name] = d
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = name
	}
}

func (r *Registry) Get(name string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.codecs[name]
	return d, ok
}

// Lookup finds the decoder for a file path by its extension.
func (r *Registry) Lookup(path string) (string, Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	if !ok {
		return "", nil, false
	}
	d, ok := r.codecs[name]
	return name, d, ok
}

// Names lists the registered formats, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open decodes rd with the decoder registered for path's extension.
func (r *Registry) Open(path string, rd io.Reader) (Source, error) {
	name, d, ok := r.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}

	src, err := d.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return src, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
