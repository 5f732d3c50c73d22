// Package httpapi exposes a docstore.Repository over HTTP.
//
// Routes, relative to /api/v1:
//
//	GET    /{database}/{entity}                  all documents, in insertion order
//	GET    /{database}/{entity}/filter/{filter}  documents matching the URL-encoded filter JSON
//	GET    /{database}/{entity}/{id}             one document by id or alias, 204 when absent
//	POST   /{database}/{entity}/{id}             upsert, same as PUT
//	PUT    /{database}/{entity}/{id}             upsert; the body is the transfer-form document
//	DELETE /{database}/{entity}/{id}             delete by id or alias, 204 when absent
//
// Validation failures answer 400, duplicate keys 409 and all other failures 500,
// each with a body of the form {"error": "..."}.
package httpapi
