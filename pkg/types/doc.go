// Package types defines the feature-document model, test-case candidates,
// synchronization options, the WorkItemStore contract and the standard
// errors shared by the gherkinsync packages.
package types
