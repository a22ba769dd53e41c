// Package modkit provides the moderation and authorization core of a chat bot:
// an account registry with a fixed role hierarchy, warning escalation, shared
// text commands with creator-scoped edit rights, and an append-only audit log.
//
// The transport layer (chat platform, mention parsing) is not part of this
// package. It resolves every event into account ids and calls the Service,
// either directly or through Dispatch.
//
// # Core Concepts
//
// Role: one of Blocked < User < Moderator < Creator. Authorization compares
// roles by that order ("at least Moderator", "exactly Creator").
//
// Account: identified by the chat platform's int64 id. Created on first sight by
// Register and never deleted. Carries a role, a warning count, a display name
// and an optional unique handle.
//
// Command: a named text macro. Any account that is not blocked may create one;
// its creator and any Moderator may edit or delete it.
//
// AuditEntry: one record per successful mutation, written after the mutation
// committed.
//
// # Key Features
//
//   - Fixed transition table: promote only from User, demote only from Moderator
//   - Warn threshold: the warning that reaches MaxWarns also blocks the User
//   - Optimistic concurrency: every mutation is a conditional update; a lost race
//     fails with ErrNotModified and can be retried with Retry
//   - Closed error taxonomy: store failures never leak as raw driver errors
//   - Postgres through dbkit, SQLite through bun, or an in-memory store for tests
//   - Prometheus metrics and a health report
//
// # Basic Usage
//
//	// 1. Open the database and run migrations
//	kit, err := modkit.OpenPostgres(ctx, url, modkit.DefaultPoolConfig(), logger)
//
//	// 2. Create the service
//	service := modkit.NewService(modkit.NewBunStore(kit.Bun()),
//	    modkit.WithMaxWarns(5),
//	    modkit.WithRolePolicy(modkit.CreatorPolicy(&creatorID)),
//	)
//
//	// 3. Register accounts as they show up
//	service.Register(ctx, userID, &handle, displayName)
//
//	// 4. Moderate
//	_, blocked, err := service.Warn(ctx, moderatorID, userID)
//	if modkit.IsForbidden(err) {
//	    // reply with a denial
//	}
//
//	// 5. Commands
//	service.CreateCommand(ctx, userID, "ping", "pong")
//	cmd, err := service.UseCommand(ctx, otherID, "ping")
//
// # Audit Log
//
// Account operations are recorded against the target account with the actor
// in the "by" payload field. Command operations are recorded against the actor.
// The request id and chat id from the context are copied into every payload.
package modkit
