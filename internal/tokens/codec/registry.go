package codec

import (
	"fmt"
	"sync"

	"github.com/copperline/tokensmith/internal/tokens/domain"
)

// Registry maps purposes to formats and formats to codec instances. It is
// built once at startup and read-only afterwards; Register and MapPurpose
// are administrative operations, not request-path ones. The mutex exists
// so a late registration can't tear a concurrent read, not to make
// mid-traffic reconfiguration a supported pattern.
type Registry struct {
	mu       sync.RWMutex
	codecs   map[domain.Format]Codec
	purposes map[domain.Purpose]domain.Format
}

func NewRegistry() *Registry {
	return &Registry{
		codecs:   make(map[domain.Format]Codec),
		purposes: make(map[domain.Purpose]domain.Format),
	}
}

// Register installs (or replaces) the codec for a format.
func (r *Registry) Register(format domain.Format, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[format] = c
}

// MapPurpose routes a purpose to a format.
func (r *Registry) MapPurpose(purpose domain.Purpose, format domain.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purposes[purpose] = format
}

// Resolve returns the format and codec for a purpose. A missing mapping
// or codec is a startup misconfiguration; callers must treat the error as
// fatal rather than degrade silently.
func (r *Registry) Resolve(purpose domain.Purpose) (domain.Format, Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	format, ok := r.purposes[purpose]
	if !ok {
		return "", nil, fmt.Errorf("codec: no format mapped for purpose %q", purpose)
	}
	c, ok := r.codecs[format]
	if !ok {
		return "", nil, fmt.Errorf("codec: no codec registered for format %q", format)
	}
	return format, c, nil
}
