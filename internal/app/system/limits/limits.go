// internal/app/system/limits/limits.go
package limits

// Request body size limits.
const (
	// MaxJSONBodySize caps every JSON request body. The largest legitimate
	// payload is an application with 20 skills and 10 resources.
	MaxJSONBodySize = 64 << 10 // 64 KB
)
