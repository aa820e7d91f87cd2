// Package api exposes each agent's operations over JSON/HTTP, together with
// the health probe and the Prometheus endpoint shared by all agents.
package api
