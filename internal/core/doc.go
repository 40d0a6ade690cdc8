// Package core provides the business logic of the food consumption form.
//
// This package sits between the transports (web handlers, the CLI) and the
// record store. It can be used by either transport, or by tests, without
// modification.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Schema: tables and fields loaded at startup, see package schema.
//   - Service: the entry point for every operation (create, update, delete,
//     restore, list, import, export).
//   - Pending imports: analyzed uploads waiting for the user to confirm them.
//   - Error codes: [MapError] turns any error into a message, an action and a
//     code that support staff can look up.
//
// # Records
//
// Every mutation validates its input against the table definition before
// anything is written. A rejected record is returned as a
// *record.ValidationError listing each failing field:
//
//	rec, err := svc.CreateRecord(ctx, "food_consumption", record.Values{
//	    "commodity": "Almonds",
//	    "age_group": "adult",
//	})
//
// Deleting only marks a record. [Service.RestoreRecord] brings it back.
//
// # Import Workflow
//
// Import is preview then commit:
//
//  1. Client calls [Service.PreviewImport] with the uploaded file
//  2. Every row is validated and the report is kept under a new import ID
//  3. Client reviews the per-row errors
//  4. Client calls [Service.CommitImport] to insert the valid rows, or
//     [Service.DiscardImport] to drop the preview
//
// Pending imports expire after Options.ImportTTL. The number of previews
// analyzed at the same time is bounded by an [ImportLimiter].
//
// # Request Metadata
//
// Handlers attach the client IP address and User-Agent to the context with
// [ContextWithIPAddress] and [ContextWithUserAgent]; mutation log entries
// carry them.
package core
