/*
Package event provides a type-safe pub/sub bus used to fan a single
session's ReAct step loop out to the SSE writer and to decouple
permission/tool/vcs notifications from their consumers.

# Event types

SSE frame types (spec §6), one per ReAct loop or streaming-chat event:
Chunk, Done, Thought, Action, Observation, Final, DiffRequest, OpenFile,
Error.

Internal notifications not framed onto the wire directly: PermissionRequired
/ PermissionResolved (internal/permission.Checker's ask-policy gate),
FileEdited (internal/tool write/edit), TodoUpdated (internal/tool todo
list), VcsBranchUpdated (internal/vcs.Watcher).

# Basic usage

	unsubscribe := event.Subscribe(event.Thought, func(e event.Event) {
		data := e.Data.(event.ThoughtData)
		log.Info().Str("content", data.Content).Msg("thought")
	})
	defer unsubscribe()

	event.Publish(event.Event{Type: event.Thought, Data: event.ThoughtData{Content: "..."}})

# Synchronous vs asynchronous

Publish calls each subscriber in its own goroutine; PublishSync calls them
in the caller's goroutine and blocks until all have returned. The server
boundary's SSE writer subscribes per-request and must not block for long
inside its callback.

# Built on watermill

The bus holds a watermill in-memory gochannel pub/sub
(ThreeDotsLabs/watermill), exposed through Bus.PubSub() for advanced use.
Publish and PublishSync do not route events through it; they call the
registered subscribers directly as described above.
*/
package event
