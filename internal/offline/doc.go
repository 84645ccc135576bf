// Package offline keeps inspection work usable without connectivity.
//
// An Engine owns a device-local Store and reconciles it with the server through a
// Remote. Edits are written locally first and marked pending; PerformSync sends every
// pending record in one batch and applies the server's classification of each one
// (created, updated or conflict) together with any server-side changes since the last
// successful round. Conflicts are surfaced, never merged silently; settling them is
// the Resolver's job.
package offline
