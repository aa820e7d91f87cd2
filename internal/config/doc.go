// Package config loads the JSON configuration shared by the blob, transcriber
// and askworld agents, fills in defaults and applies environment overrides.
package config
