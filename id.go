package tierpay

import "github.com/xraph/tierpay/id"

// ID is the identifier type for journal events and royalty charges.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
