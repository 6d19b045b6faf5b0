// Package restoretests contains the connection-restore scenarios themselves and their
// supporting API.
//
// A scenario launches a router and one or more client example programs, then breaks the
// connection between them, either by dropping traffic on the router port or by stopping
// the router, and checks from the programs' own log output that they notice the loss and
// recover from it.
//
// Infrastructure that is not specific to this domain, such as launching processes,
// collecting their output and blocking the network, is in the lower-level framework
// packages.
package restoretests
