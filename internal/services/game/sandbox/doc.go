// Package sandbox hosts room validators as restricted Lua programs.
//
// Every invocation runs in a fresh interpreter state: no globals, caches, or
// coroutines survive between calls, which keeps validators honest about their
// purity contract. Only the base, string, table, and math libraries are
// opened, and the escape hatches (os, io, load, require, dofile, print,
// math.random) are removed before any validator code runs. A count-based
// debug hook enforces the per-invocation deadline.
package sandbox
