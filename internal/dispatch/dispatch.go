// Package dispatch is the Command Dispatch Core: it accepts a
// normalized request for one of devc's top-level operations (up,
// build, exec, down, read-configuration, doctor) and wires together
// internal/config, internal/feature, internal/lifecycle,
// internal/identity, and internal/runtime to carry it out.
package dispatch

import (
	"time"

	"github.com/nlsantos/devc/internal/feature"
	"github.com/nlsantos/devc/internal/ociclient"
	"github.com/nlsantos/devc/internal/progress"
	"github.com/nlsantos/devc/internal/redact"
	"github.com/nlsantos/devc/internal/runtime"
)

// ImageTagPrefix namespaces images devc builds locally from a
// devcontainer.json so they don't collide with pulled images.
const ImageTagPrefix = "localhost/devc--"

// Dispatcher holds the collaborators every operation needs: a
// container Runtime, a feature Resolver, a progress Emitter, and the
// secret Redactor. One Dispatcher is built per process invocation.
type Dispatcher struct {
	Runtime  runtime.Runtime
	Resolver *feature.Resolver
	Emitter  *progress.Emitter
	Redactor *redact.Registry
}

// New builds a Dispatcher, substituting a no-op progress Emitter for a
// nil emitter and redact.Default() for a nil redactor. The resolver is
// used as given; NewResolver builds the default one.
func New(rt runtime.Runtime, resolver *feature.Resolver, emitter *progress.Emitter, redactor *redact.Registry) *Dispatcher {
	if emitter == nil {
		emitter = progress.NewEmitter(nil)
	}
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Dispatcher{Runtime: rt, Resolver: resolver, Emitter: emitter, Redactor: redactor}
}

// NewResolver builds the default feature.Resolver: an OCI client over
// net/http with a generous client-wide timeout, honoring
// DEACON_CUSTOM_CA_BUNDLE per internal/ociclient's transport.
func NewResolver() (*feature.Resolver, error) {
	transport, err := ociclient.NewDefaultTransport(2 * time.Minute)
	if err != nil {
		return nil, err
	}
	client := ociclient.New(transport)
	return feature.NewResolver(client)
}
