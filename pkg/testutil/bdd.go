package testutil

import "testing"

// Given opens the arrange step of a scenario-shaped test. Together with When
// and Then it gives end-to-end tests readable subtest names without a BDD
// framework dependency.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

// When runs the act step.
func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

// Then runs an assertion step.
func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
