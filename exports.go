package custody

import "github.com/xraph/custody/types"

// Re-export common types for convenience so users don't have to import types package.

// Identity is re-exported from types package.
type Identity = types.Identity

// Entity is re-exported from types package.
type Entity = types.Entity

// Anonymous is the unbound identity sentinel.
const Anonymous = types.Anonymous

// Re-export Entity constructor
var NewEntity = types.NewEntity
