package permissions

import (
	"fmt"

	"contextagent/internal/platform"
)

// Reason classifies why a permission request did not resolve to a grant.
type Reason string

const (
	// ReasonDenied means the user or the OS refused the capability.
	ReasonDenied Reason = "denied"
	// ReasonTimedOut means the consent flow was abandoned; treated the same
	// as a denial for state-machine purposes.
	ReasonTimedOut Reason = "timed_out"
)

// Error reports a failed permission request with enough structure for the
// caller to render specific remediation text.
type Error struct {
	Capability platform.Capability
	Reason     Reason
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permission %s %s: %v", e.Capability, e.Reason, e.Cause)
	}
	return fmt.Sprintf("permission %s %s", e.Capability, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Remediation names the settings panel where the user can grant the
// capability manually.
func (e *Error) Remediation() string {
	switch e.Capability {
	case platform.CapabilityAccessibility:
		return "grant access under Privacy & Security > Accessibility, then retry activation"
	case platform.CapabilityAutomation:
		return "allow the agent to control other applications under Privacy & Security > Automation"
	case platform.CapabilityScreenRecording:
		return "grant access under Privacy & Security > Screen Recording to enable the optical fallback"
	}
	return "grant the capability in the system privacy settings"
}
