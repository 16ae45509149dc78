// Package hunt provides the foundational types of the hunt-progression engine.
//
// This package contains identifiers, visibility records, typed team property
// values and the error taxonomy shared by every other package. All other
// internal packages import hunt; hunt imports nothing internal.
//
// Key design constraints:
//   - Property values are a sealed set (String, Int, Bool, List, Map), no floats
//   - Property values compare by canonical JSON bytes
//   - Property keys are NFC normalized before storage
//   - All JSON tags use snake_case
package hunt
