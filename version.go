// Package agentregistry provides the version information for the agent registry.
package agentregistry

// Version is the current version of the agent registry.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
