// Package flowadmin manages the lifecycle of tenant-authored flow graphs.
// Saving a graph compiles it; a graph that fails compilation is never
// stored, so every stored flow always has a runnable plan. Each successful
// save produces a new plan version, which invalidates sessions still
// walking the previous version.
package flowadmin
