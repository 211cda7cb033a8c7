// Package notifier delivers duty notifications over a transport adapter.
//
// Every send passes a shared token bucket and is retried with jittered
// exponential backoff. Delivery is synchronous so the caller learns about
// failures; the duty engine logs them and keeps its committed state.
//
// # Buttons
//
// Prompts carry inline buttons whose callback data is "duty:confirm",
// "duty:decline" or "bags:request". The router parses the same strings.
package notifier
