// Package logging keeps plain text copies of what the harness prints.
package logging
