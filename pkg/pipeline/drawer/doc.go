// Package drawer renders a pipeline as a graphviz DOT graph.
// Edges are coloured from blue to red by their average transport time when a measure is attached.
package drawer
