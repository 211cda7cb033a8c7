// Package duty is the reminder engine of the trash duty bot.
//
// One StateStore holds the single TaskState. Two callers mutate it: the
// Engine loop (prompt, remind, shame) and the Responder (confirm, decline
// button presses). Every mutation is one whole-state transition inside the
// store's mutex; conditional transitions compare the phase the caller
// observed, so a stale caller becomes a no-op instead of overwriting the
// winner.
//
//	Idle --items due--> Awaiting --confirm--> Idle
//	                    Awaiting --decline--> Escalated --loop--> Idle (+shame)
//	                    Awaiting --max reminders--> Idle (+shame)
package duty
