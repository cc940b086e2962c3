// Package output turns raw session bytes into ordered output records and
// renders them.
//
// The Coalescer is pure bookkeeping: it splits bytes into lines, stamps them
// with sequence numbers and decides when a grouped block may be released. It
// never writes anywhere. The Renderer does the writing, and the Joiner folds
// identical outputs together for join mode.
package output
