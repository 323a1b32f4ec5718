// Package domain contains the core entities of the action build pipeline:
// build tasks, recording tasks, source versions, chunks and the elements the
// recorder discovers. Types here carry their own validation and have no
// dependencies on storage or transport.
package domain
