// Package stock exposes the ledger engine over HTTP.
//
// It selects the persistence from config (the gorm adapter in
// feature/stock/store, or the in-memory store) and optionally archives
// history to object storage.
//
// # Components
//
//   - Service: Builds the store and the ledger engine, exports history.
//   - Handler: Maps requests to ledger operations and ledger errors to status codes.
//   - Feature: Registers the routes with the application.
//
// Mutating requests identify the user with the X-Actor-Id and X-Actor-Name
// headers. Operator-only requests also send X-Admin-Key matching
// server.admin_key; without a configured key they are refused.
//
// # HTTP Endpoints
//
//   - GET    /ledger/entries/:registry
//   - POST   /ledger/entries
//   - GET    /ledger/entries/:registry/:category/:name
//   - DELETE /ledger/entries/:registry/:category/:name
//   - PUT    /ledger/entries/:registry/:category/:name/name      {"name"}
//   - PUT    /ledger/entries/:registry/:category/:name/quantity  {"value"}
//   - POST   /ledger/entries/:registry/:category/:name/quantity  {"delta"}
//   - PUT    /ledger/entries/:registry/:category/:name/required  {"value"}
//   - GET    /ledger/entries/:registry/:category/:name/recipe
//   - PUT    /ledger/entries/:registry/:category/:name/recipe    {"materials"}
//   - POST   /ledger/entries/:registry/:category/:name/work
//   - DELETE /ledger/entries/:registry/:category/:name/work      (?reset=true with X-Admin-Key)
//   - POST   /ledger/entries/:registry/:category/:name/tags/:tag
//   - DELETE /ledger/entries/:registry/:category/:name/tags/:tag
//   - POST   /ledger/links
//   - POST   /ledger/work/start-all
//   - GET    /ledger/workers
//   - GET    /ledger/tags/:registry, POST /ledger/tags, DELETE /ledger/tags/:registry/:tag
//   - POST   /ledger/tag-selections
//   - GET    /ledger/history, POST /ledger/history/export, GET /ledger/history/archives
package stock
