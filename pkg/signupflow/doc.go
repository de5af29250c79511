// Package signupflow implements the three step registration wizard:
// credentials, identity, and email confirmation. The identity step checks
// username availability against the remote provider with a debounce, and the
// confirmation step records the pending sign-up locally before issuing the
// registration call so a later email click can still be finalized.
package signupflow
