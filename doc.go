// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zsync reconstructs a remote file locally by transferring only the
// bytes that differ from data already available on disk, following the
// zsync protocol: a one-sided variant of rsync where all block-level
// metadata is precomputed into a control file served statically alongside
// the target.
//
// Given a control file, the package matches arbitrary local seed streams
// against the target's block checksums, figures out which blocks still
// need fetching, and drives an HTTP byte-range collaborator to retrieve
// exactly those bytes.
package zsync
