package blob

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every handle the registry issues.
const Scheme = "blob:rebook/"

// Object is a payload registered under a handle.
type Object struct {
	Data        []byte
	ContentType string
}

// Registry hands out transient handles for in-memory payloads. A handle stays
// resolvable until it is revoked.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]Object)}
}

// Create registers data and returns its handle. The slice is not copied.
func (r *Registry) Create(data []byte, contentType string) string {
	handle := Scheme + uuid.NewString()

	r.mu.Lock()
	r.objects[handle] = Object{Data: data, ContentType: contentType}
	r.mu.Unlock()

	return handle
}

// Open resolves a handle. Bare IDs without the scheme are accepted too.
func (r *Registry) Open(handle string) (Object, bool) {
	if !strings.HasPrefix(handle, Scheme) {
		handle = Scheme + handle
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[handle]
	return obj, ok
}

// Revoke releases a handle. It reports true only for the call that
// actually released it.
func (r *Registry) Revoke(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[handle]; !ok {
		return false
	}
	delete(r.objects, handle)
	return true
}

// Live returns the number of unrevoked handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// ID strips the scheme from a handle.
func ID(handle string) string {
	return strings.TrimPrefix(handle, Scheme)
}
