// Package checkpoint saves the page cursor of an in-progress traversal so a
// later run started with --resume can pick up at the same page.
//
// One JSON file per subject lives under the data directory:
//   - Linux: $XDG_DATA_HOME/artsync/checkpoints/ (default ~/.local/share)
//   - macOS: ~/Library/Application Support/artsync/checkpoints/
//   - Windows: %APPDATA%/artsync/checkpoints/
//
// Files are replaced atomically and removed when a traversal completes.
package checkpoint
