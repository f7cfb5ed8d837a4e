// Package eventsvc is the application layer over the event log: publishing
// and listing squeaks, and stream administration (create, delete, info,
// list, clear). Transports call it instead of touching the store directly.
package eventsvc
