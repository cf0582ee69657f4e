// Package practice models a theory practice submission: validation of the
// inbound batch, scoring of the batch and the immutable session record
// kept as the audit trail of every accepted submission.
package practice
