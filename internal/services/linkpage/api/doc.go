// Package api defines the wire types exchanged with the bio-link backend and
// the GraphQL documents the client issues.
//
// The backend answers GraphQL in camelCase and REST in snake_case; decoders
// here accept either spelling so one type serves both transports.
package api
