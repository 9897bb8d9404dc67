// Package synth builds search phrases from sentence templates and word pools.
//
// A Corpus holds an ordered list of templates such as "how to [verb] a
// [noun]" and a pool of candidate words for each placeholder. The
// Synthesizer picks a template uniformly at random and replaces every
// occurrence of every registered placeholder with an independently drawn
// word, so "[noun] and [noun]" may become "cat and dog".
//
// A Corpus is loaded once and never modified afterwards, so one Synthesizer
// can be shared by concurrent sessions.
package synth
