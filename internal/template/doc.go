// Package template stores named email templates and renders them by
// substituting {{placeholder}} tokens.
//
// The variables column of a stored template is advisory documentation:
// it is recomputed on every write by scanning the subject and bodies,
// but rendering never fails on a missing binding. Unbound tokens are
// left verbatim in the output so a partially configured template still
// delivers a usable email.
package template
