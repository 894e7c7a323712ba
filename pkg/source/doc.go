// Package source provides record sources for streams.
//
// A source is made of an Opener, which acquires the raw bytes (a file, an HTTP body),
// and a format decoding them (text lines, JSON lines, JSON array, CSV). The opened
// resource belongs to the reader returned by the source and is released once, by Close.
package source
