// Package mongo provides a MongoDB-backed workflow.Store. Build the low-level
// client with features/workflow/mongo/clients/mongo and pass it to NewStore,
// or let NewStoreFromMongo build both from a driver client.
package mongo
