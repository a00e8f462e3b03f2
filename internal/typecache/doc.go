// Package typecache persists export-style knowledge between builds.
//
// The file maps a serialized module id (root-relative slash path, or
// "~spec" for externals) to null, meaning the module unconditionally
// prefers a default export, or to the serialized id of the one importer
// the fact must not be applied to. Files ending in .mp or .msgpack use
// MessagePack; everything else is JSON.
package typecache
