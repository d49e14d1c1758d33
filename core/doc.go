// Package core contains the consent access domain: sessions, contract flows,
// the authorization broker and its resolvers, the callback forwarding chain and
// the client composition root. Transport, security and persistence adapters
// depend on this package; core must not depend on them.
package core
