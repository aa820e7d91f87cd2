// Package agent contains the chat pipeline shared by the agents. It turns a
// transport neutral Request into an intent, asks for clarification when the
// intent is uncertain, and hands confident requests to the dispatcher.
package agent
