// Package logging provides a pipeline option that reports the step lifecycle with zerolog.
package logging
