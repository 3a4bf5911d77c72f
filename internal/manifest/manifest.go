// Package manifest tracks the last-indexed state of a user's upload
// directory so unchanged files are never re-embedded.
package manifest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the manifest file kept inside each user directory. The leading
// dot keeps it out of file listings and out of its own diff.
const FileName = ".ingest-manifest.json"

// Entry records the state of one file as of the last successful upsert.
type Entry struct {
	Size    int64  `json:"size"`
	MtimeNS int64  `json:"mtime_ns"`
	Hash    string `json:"hash"`
}

// Read loads the manifest for a user directory. An absent or unreadable
// manifest yields an empty map, never an error: worst case everything is
// re-indexed, which is safe because upserts are idempotent.
func Read(userDir string) map[string]Entry {
	raw, err := os.ReadFile(filepath.Join(userDir, FileName))
	if err != nil {
		return map[string]Entry{}
	}
	entries := map[string]Entry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return map[string]Entry{}
	}
	return entries
}

// Write replaces the manifest in full. The write goes through a temp file
// and rename so a crash never leaves a truncated manifest behind.
func Write(userDir string, entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	target := filepath.Join(userDir, FileName)
	tmp, err := os.CreateTemp(userDir, FileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

// Diff is the outcome of comparing a directory against its manifest.
type Diff struct {
	// ToProcess lists file names whose content changed and must be
	// re-indexed, in the order they were examined.
	ToProcess []string
	// Next is the staged manifest to persist after a successful upsert.
	Next map[string]Entry
	// PassiveUpdate is set when an entry's stat fields changed but its
	// content hash did not; the manifest should be persisted even if
	// nothing is re-indexed.
	PassiveUpdate bool
}

// Compute diffs the named files in userDir against previous entries.
// Per file: a matching size+mtime skips without reading; a matching content
// hash refreshes stat fields only; anything else is marked for processing.
// Stat or read failures skip the file entirely so one bad file cannot fail
// the whole pass.
func Compute(userDir string, names []string, previous map[string]Entry) Diff {
	d := Diff{Next: make(map[string]Entry, len(previous))}
	for k, v := range previous {
		d.Next[k] = v
	}

	for _, name := range names {
		if strings.HasSuffix(name, ".meta.json") {
			continue // sidecar metadata, not content
		}
		path := filepath.Join(userDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue // transient; retried on the next call
		}

		prev, seen := previous[name]
		if seen && prev.Size == info.Size() && prev.MtimeNS == info.ModTime().UnixNano() {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		sum := sha1.Sum(raw)
		hash := hex.EncodeToString(sum[:])

		entry := Entry{Size: info.Size(), MtimeNS: info.ModTime().UnixNano(), Hash: hash}
		if seen && prev.Hash == hash {
			// Touched but identical content: refresh stat fields, skip
			// re-indexing, but remember the manifest needs persisting.
			d.Next[name] = entry
			d.PassiveUpdate = true
			continue
		}

		d.ToProcess = append(d.ToProcess, name)
		d.Next[name] = entry
	}

	return d
}
