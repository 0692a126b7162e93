/*
Package revstore is a branch-aware revision store for terminology components.

Components are versioned on a tree of branches rooted at MAIN. Every commit on a branch
is stamped by a single logical clock, so that the state of any branch can be read as of
any past timestamp.

Branches are merged with a three-way comparison against their merge base. Changes that
can't be reconciled automatically are reported as typed conflicts and nothing is written.
Reviews compute the changes brought by a branch in the background, and become stale as
soon as one of the reviewed branches moves.

The library lives under pkg/: pkg/core exposes a Repo wiring all the engines together.
The revstore command serves the repo over HTTP and manages it from the command line.
*/
package revstore
