// Package tgui provides small Telegram UI helpers: inline keyboards,
// "scope:action:payload" callback data and HTML-safe text fragments.
package tgui
