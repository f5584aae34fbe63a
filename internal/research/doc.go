// Package research holds the pricing research core: identity resolution for
// research records, the marketplace registry, and the service that binds a
// record to a collector and an optional storage backend.
//
// A request flows through the package as follows:
//
//  1. NewRecord resolves the caller's identity (url, or marketplace plus
//     marketplace_id) into a canonical Record using the Registry.
//  2. Service.Conduct selects a Collector for the record and merges the
//     collected sellers into it.
//  3. Service.Retrieve rehydrates the record from the most recent stored
//     Snapshot, and Service.PersistTask captures a Snapshot for saving in
//     the background.
package research
