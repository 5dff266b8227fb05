// Package memory contains the Store contract and its backends. The volatile
// store keeps records in process memory and loses them on exit; the Postgres
// and Redis stores are durable and survive restarts. Pick a backend at wiring
// time and depend on Store in your code.
//
// All backends rank Search results by cosine similarity between the query
// embedding and the record embedding, and match records whose namespace equals
// the requested one or is nested under it.
package memory
