package reconcile

import "github.com/pkgit123/deltaneutral-ftp-s3/internal/naming"

// Missing returns remote - local by exact name match.
func Missing(remote, local NameSet) NameSet {
	out := make(NameSet)
	for n := range remote {
		if !local.Has(n) {
			out.Add(n)
		}
	}
	return out
}

// ClassifyDaily keeps only the daily archives in names. Periodic archives
// and anything that is not an archive at all are dropped without error.
func ClassifyDaily(conv naming.Convention, names []string) NameSet {
	out := make(NameSet)
	for _, n := range names {
		if conv.IsDaily(n) {
			out.Add(n)
		}
	}
	return out
}

// PendingExpansion returns the staged archives that have no conforming
// member among expanded.
//
// An archive counts as expanded as soon as one of its members is present,
// so an interrupted expansion is never resumed and an archive without
// members is pending forever. PendingByMarker avoids both.
func PendingExpansion(conv naming.Convention, staged, expanded NameSet) NameSet {
	done := make(NameSet)
	for n := range expanded {
		if archive, ok := conv.ArchiveFor(n); ok {
			done.Add(archive)
		}
	}
	return Missing(staged, done)
}

// PendingByMarker returns the staged archives whose completion marker is
// absent from published.
func PendingByMarker(conv naming.Convention, staged, published NameSet) NameSet {
	done := make(NameSet)
	for n := range published {
		if archive, ok := conv.ArchiveForMarker(n); ok {
			done.Add(archive)
		}
	}
	return Missing(staged, done)
}
