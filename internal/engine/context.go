package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	v8 "github.com/tommie/v8go"
)

// Context wraps one VM context together with its module index and
// shadow-realm bookkeeping.
//
// The bound VM API never demonstrates per-context embedder data slots
// or a SetSecurityToken call, so the weak back-pointer and security
// token that a VM-native implementation would keep on the context
// object itself are kept as plain Go fields instead: securityToken
// gates same-realm checks at the Go layer, and the owning Runtime is
// reached directly rather than via a promoted weak pointer, since the
// Context already lives only as long as its Go owner does. See
// DESIGN.md.
type Context struct {
	runtime       *Runtime
	name          string
	vmContext     *v8.Context
	modules       *ModuleIndex
	securityToken string
	initialized   bool
	disposed      bool

	dynamicImportBaseDir string
}

// newContext builds an empty global object template, creates the VM
// context, generates a security token, and builds the module index.
func newContext(rt *Runtime, name string) (*Context, error) {
	global := v8.NewObjectTemplate(rt.iso)
	vmCtx := v8.NewContext(rt.iso, global)
	if vmCtx == nil {
		return nil, fmt.Errorf("engine: failed to create VM context %q", name)
	}

	ctx := &Context{
		runtime:       rt,
		name:          name,
		vmContext:     vmCtx,
		securityToken: uuid.NewString(),
	}
	ctx.modules = newModuleIndex(ctx)
	if err := InstallDynamicImport(ctx); err != nil {
		return nil, fmt.Errorf("engine: installing dynamic import for context %q: %w", name, err)
	}
	ctx.initialized = true
	return ctx, nil
}

// Name returns the context's registered name.
func (c *Context) Name() string { return c.name }

// VM returns the underlying VM context.
func (c *Context) VM() *v8.Context { return c.vmContext }

// Runtime returns the owning Runtime.
func (c *Context) Runtime() *Runtime { return c.runtime }

// Modules returns the context's module index.
func (c *Context) Modules() *ModuleIndex { return c.modules }

// SecurityToken returns the context's security token, used to decide
// whether two contexts belong to the same realm.
func (c *Context) SecurityToken() string { return c.securityToken }

// dispose tears the context down. Idempotent.
func (c *Context) dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.vmContext.Close()
	c.runtime = nil
}

// generateShadowName derives "{base}:shadow:{n}" from the current
// name, where base is the name up to the first ':' and n is one more
// than the integer found after the second ':' (default 0).
func generateShadowName(name string) string {
	parts := strings.SplitN(name, ":", 3)
	base := parts[0]
	n := 0
	if len(parts) == 3 {
		if v, err := strconv.Atoi(parts[2]); err == nil {
			n = v + 1
		}
	}
	return fmt.Sprintf("%s:shadow:%d", base, n)
}

// createShadowRealmContext derives a child context for a ShadowRealm
// constructed inside initiator, copying its security token so
// same-realm checks against the initiator continue to succeed.
func (c *Runtime) createShadowRealmContext(initiator *Context) (*Context, error) {
	shadowName := generateShadowName(initiator.name)
	child, err := c.CreateContext(shadowName)
	if err != nil {
		return nil, err
	}
	child.securityToken = initiator.securityToken
	return child, nil
}
