// +build debug

package tag

// Debug build has runtime invariant checks with large performance overhead.
const Debug = true
