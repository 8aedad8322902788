// Package naming holds the file-naming rules shared by the fetch and expand
// stages: which remote archives are daily, and how an archive name maps to
// the names of its published members and back.
package naming

import "strings"

// Convention describes the DeltaNeutral naming scheme.
//
// A daily archive looks like "L2_20200115.zip"; a periodic one carries the
// separator right after the year, e.g. "L2_2020_January.zip". Members of
// "L2_<suffix>.zip" are published as "options_<suffix>[.ext]".
type Convention struct {
	// Offset is the byte position inspected for Separator.
	Offset int
	// Separator at Offset marks a periodic (monthly) archive.
	Separator byte
	// ArchiveExt is the extension every remote archive carries.
	ArchiveExt string
	// ArchivePrefix and MemberPrefix are swapped by the naming transform.
	ArchivePrefix string
	MemberPrefix  string
	// MarkerSuffix is appended to an archive name to form its completion marker.
	MarkerSuffix string
}

// DeltaNeutral is the convention used by the L2 options feed.
var DeltaNeutral = Convention{
	Offset:        7,
	Separator:     '_',
	ArchiveExt:    ".zip",
	ArchivePrefix: "L2_",
	MemberPrefix:  "options_",
	MarkerSuffix:  ".done",
}

// IsArchive reports whether name carries the archive extension.
func (c Convention) IsArchive(name string) bool {
	return len(name) > len(c.ArchiveExt) && strings.HasSuffix(name, c.ArchiveExt)
}

// IsDaily reports whether name is a daily archive: an archive long enough to
// have a character at Offset, and that character is not Separator.
func (c Convention) IsDaily(name string) bool {
	if !c.IsArchive(name) || len(name) <= c.Offset {
		return false
	}
	return name[c.Offset] != c.Separator
}

// IsPeriodic reports whether name is a monthly/periodic archive.
func (c Convention) IsPeriodic(name string) bool {
	if !c.IsArchive(name) || len(name) <= c.Offset {
		return false
	}
	return name[c.Offset] == c.Separator
}

// MemberBase maps "L2_<suffix>.zip" to "options_<suffix>".
func (c Convention) MemberBase(archive string) (string, bool) {
	if !c.IsArchive(archive) || !strings.HasPrefix(archive, c.ArchivePrefix) {
		return "", false
	}
	suffix := strings.TrimSuffix(strings.TrimPrefix(archive, c.ArchivePrefix), c.ArchiveExt)
	if suffix == "" {
		return "", false
	}
	return c.MemberPrefix + suffix, true
}

// ArchiveFor is the reverse of MemberBase. A trailing file extension on the
// member ("options_20200115.csv") is ignored. Names without the member
// prefix do not conform and return false.
func (c Convention) ArchiveFor(member string) (string, bool) {
	if !strings.HasPrefix(member, c.MemberPrefix) {
		return "", false
	}
	suffix := strings.TrimPrefix(member, c.MemberPrefix)
	if i := strings.LastIndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[:i]
	}
	if suffix == "" {
		return "", false
	}
	return c.ArchivePrefix + suffix + c.ArchiveExt, true
}

// MarkerFor returns the completion marker name for archive.
func (c Convention) MarkerFor(archive string) string {
	return archive + c.MarkerSuffix
}

// ArchiveForMarker recovers the archive name from a completion marker.
func (c Convention) ArchiveForMarker(name string) (string, bool) {
	if c.MarkerSuffix == "" || !strings.HasSuffix(name, c.MarkerSuffix) {
		return "", false
	}
	archive := strings.TrimSuffix(name, c.MarkerSuffix)
	if !c.IsArchive(archive) {
		return "", false
	}
	return archive, true
}
