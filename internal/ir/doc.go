// Package ir provides the value and identity types shared by every kbquery
// package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere, numbers are int64
//   - Booleans are interchangeable with the integers 0 and 1 when compared
//   - Object identity (ObjectBranchID) never includes a revision
//   - Canonical JSON is the only encoding used for content hashes
package ir
