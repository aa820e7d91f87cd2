// Package llm declares the language model capabilities used by the agents:
// intent classification, clarification, answer judging and summarization.
// Provider adapters live in sub-packages.
package llm
