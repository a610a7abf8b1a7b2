package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

var (
	// ErrCyclicDependency is returned when the active dependency edges form a cycle.
	ErrCyclicDependency = zerr.New("cyclic dependency")

	// ErrUnresolvedDependency is returned when an edge or target references an unknown package or channel.
	ErrUnresolvedDependency = zerr.New("unresolved dependency")

	// ErrOptionConflict is returned when two active edges require mutually exclusive options on one package.
	ErrOptionConflict = zerr.New("option conflict")

	// ErrIntegrityMismatch is returned when fetched bytes do not match the expected digest.
	ErrIntegrityMismatch = zerr.New("integrity mismatch")

	// ErrFetchFailed is returned when no candidate locator could be retrieved.
	ErrFetchFailed = zerr.New("fetch failed")

	// ErrDependencyFailed marks a step that was skipped because a dependency failed.
	ErrDependencyFailed = zerr.New("dependency failed")

	// ErrCancelled marks a step that never started because the install was cancelled.
	ErrCancelled = zerr.New("cancelled")

	// ErrBuildFailed is returned when the builder could not produce an artifact.
	ErrBuildFailed = zerr.New("build failed")

	// ErrDuplicateCommit is returned when a fingerprint is committed twice with different content.
	ErrDuplicateCommit = zerr.New("duplicate commit")

	// ErrDuplicatePackage is returned when a spec with the same name is added to a store twice.
	ErrDuplicatePackage = zerr.New("duplicate package")

	// ErrDuplicateChannel is returned when a spec declares the same channel identifier twice.
	ErrDuplicateChannel = zerr.New("duplicate channel")

	// ErrInvalidSpec is returned when a spec is structurally incomplete.
	ErrInvalidSpec = zerr.New("invalid package spec")

	// ErrInvalidOption is returned for option flags that are not of the form with-<name> or without-<name>.
	ErrInvalidOption = zerr.New("invalid option flag")

	// ErrNoTargetsSpecified is returned when an install or plan request names no packages.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrInstallFailed is returned by the application when at least one step did not complete.
	ErrInstallFailed = zerr.New("install failed")
)

// ErrorKind classifies an error into the taxonomy reported on build results.
type ErrorKind string

const (
	// KindNone is the kind of a nil error.
	KindNone ErrorKind = ""
	// KindCyclicDependency classifies ErrCyclicDependency.
	KindCyclicDependency ErrorKind = "CyclicDependency"
	// KindUnresolvedDependency classifies ErrUnresolvedDependency.
	KindUnresolvedDependency ErrorKind = "UnresolvedDependency"
	// KindOptionConflict classifies ErrOptionConflict.
	KindOptionConflict ErrorKind = "OptionConflict"
	// KindIntegrityMismatch classifies ErrIntegrityMismatch.
	KindIntegrityMismatch ErrorKind = "IntegrityMismatch"
	// KindFetchFailed classifies ErrFetchFailed.
	KindFetchFailed ErrorKind = "FetchFailed"
	// KindDependencyFailed classifies ErrDependencyFailed.
	KindDependencyFailed ErrorKind = "DependencyFailed"
	// KindCancelled classifies ErrCancelled.
	KindCancelled ErrorKind = "Cancelled"
	// KindBuildFailed classifies ErrBuildFailed.
	KindBuildFailed ErrorKind = "BuildFailed"
	// KindDuplicateCommit classifies ErrDuplicateCommit.
	KindDuplicateCommit ErrorKind = "DuplicateCommit"
	// KindUnknown classifies any error outside the taxonomy.
	KindUnknown ErrorKind = "Unknown"
)

// Order matters: an integrity mismatch that exhausted every mirror is joined with
// ErrFetchFailed, and must still classify as IntegrityMismatch.
var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrCancelled, KindCancelled},
	{ErrDependencyFailed, KindDependencyFailed},
	{ErrCyclicDependency, KindCyclicDependency},
	{ErrUnresolvedDependency, KindUnresolvedDependency},
	{ErrOptionConflict, KindOptionConflict},
	{ErrIntegrityMismatch, KindIntegrityMismatch},
	{ErrFetchFailed, KindFetchFailed},
	{ErrDuplicateCommit, KindDuplicateCommit},
	{ErrBuildFailed, KindBuildFailed},
}

// KindOf returns the ErrorKind of err by matching it against the domain sentinels.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}
