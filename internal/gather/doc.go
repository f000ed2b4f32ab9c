// Package gather provides coordination logic for collecting the known
// versions of a key from multiple version sources. It handles fanout,
// per-source timeout management, and required-response validation.
package gather
