// Package sink provides record sinks for streams.
//
// A sink acquires its output on Open, from a Target, and releases it on Close.
// Close can be called many times, the output is flushed and closed once.
package sink
