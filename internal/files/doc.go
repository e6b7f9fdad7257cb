// Package files provides file system plumbing for pipeline runs.
//
// RunLayout names every artifact of a run under <output>/<run id>/.
// AtomicFile and TextFile write through a ".partial" file that is renamed
// on Commit and removed on Abort, so an interrupted stage never leaves a
// file that looks complete. NewReader and NewWriter convert between UTF-8
// and the supported CSV encodings (utf_8, shift_jis).
//
// Discovery expands input sources (files, directories, globs) for batch runs.
package files
