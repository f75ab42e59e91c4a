package blocks

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	messagePolicyOnce sync.Once
	messagePolicy     *bluemonday.Policy
)

// SanitizeMessage strips markup from a server-supplied block message so
// it can be rendered into the block modal as-is. Automated block text is
// operator-configured on the server side and has carried stray HTML in
// the wild.
func SanitizeMessage(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	policy := sanitizer()
	return strings.TrimSpace(policy.Sanitize(trimmed))
}

func sanitizer() *bluemonday.Policy {
	messagePolicyOnce.Do(func() {
		messagePolicy = bluemonday.StrictPolicy()
	})
	return messagePolicy
}
