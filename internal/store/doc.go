// Package store holds the bot's in-memory state: the activity log ring
// and the singleton settings record.
//
// Nothing here survives a restart. Both stores are safe for concurrent use.
package store
