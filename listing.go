package ftpclient

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// NoAccess is the Children value of a directory whose contents could not
// be listed.
const NoAccess = -1

// Entry is one row of a Unix-style directory listing.
type Entry struct {
	// Name is the remainder of the line after the eighth field, verbatim.
	// It is never "." or "..".
	Name string

	Kind Kind

	// Size is the byte size from the listing. RawSize holds the size token
	// instead when it is not an integer.
	Size    int64
	RawSize string

	// Children is the number of entries inside a directory, or NoAccess.
	// Only set by Session.List.
	Children int

	// ModTime is in local time; zero when the date fields are unusable.
	ModTime time.Time

	// Raw is the original listing line.
	Raw string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// SizeText renders the size column: bytes for files, an item count or
// "no access" for directories.
func (e Entry) SizeText() string {
	if e.IsDir() {
		if e.Children == NoAccess {
			return "no access"
		}
		return fmt.Sprintf("%d items", e.Children)
	}
	if e.RawSize != "" {
		return e.RawSize
	}
	return strconv.FormatInt(e.Size, 10)
}

// ParseListing parses raw LIST output. Lines with fewer than nine fields
// are skipped, as are "." and "..". now anchors timestamps that carry no
// year.
func ParseListing(raw string, now time.Time) []Entry {
	var entries []Entry
	for _, line := range strings.Split(raw, "\n") {
		if e, ok := parseListLine(strings.TrimRight(line, "\r"), now); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseListLine(line string, now time.Time) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}
	name := remainderAfterFields(line, 8)
	if name == "." || name == ".." {
		return Entry{}, false
	}

	e := Entry{Name: name, Kind: KindFile, Raw: line}
	if fields[0][0] == 'd' {
		e.Kind = KindDirectory
	}
	if size, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
		e.Size = size
	} else {
		e.RawSize = fields[4]
	}
	if t, err := ParseTimestamp(fields[5], fields[6], fields[7], now); err == nil {
		e.ModTime = t
	}
	return e, true
}

// remainderAfterFields returns line with its first n whitespace-separated
// fields and the whitespace after them removed. Whitespace inside the rest
// is kept. Fields are delimited the way strings.Fields delimits them.
func remainderAfterFields(line string, n int) string {
	rest := line
	for range n {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace)
}

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// futureSlack is how far ahead of now a year-less timestamp may fall
// before it is taken to belong to the previous year. It absorbs server
// clocks running in another time zone.
const futureSlack = 48 * time.Hour

// ParseTimestamp resolves the date columns of an ls -l line: month, day
// and either "HH:MM" (recent, no year) or "YYYY". An unknown month is read
// as January. For "HH:MM" the year is now's year, minus one when that
// would put the timestamp in the future. Times are read as UTC and
// returned in local time.
func ParseTimestamp(month, day, clock string, now time.Time) (time.Time, error) {
	mon, ok := months[month]
	if !ok {
		mon = time.January
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid day %q", day)
	}

	if h, mm, ok := strings.Cut(clock, ":"); ok {
		hour, err1 := strconv.Atoi(h)
		minute, err2 := strconv.Atoi(mm)
		if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid time %q", clock)
		}
		nowUTC := now.UTC()
		t := time.Date(nowUTC.Year(), mon, d, hour, minute, 0, 0, time.UTC)
		if t.After(nowUTC.Add(futureSlack)) {
			t = time.Date(nowUTC.Year()-1, mon, d, hour, minute, 0, 0, time.UTC)
		}
		return t.Local(), nil
	}

	year, err := strconv.Atoi(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year %q", clock)
	}
	return time.Date(year, mon, d, 0, 0, 0, 0, time.UTC).Local(), nil
}

// List runs LIST on the working directory and parses it. For every
// directory it also lists that directory's contents to fill in Children,
// one extra round trip each.
func (s *Session) List() ([]Entry, error) {
	entries, err := s.listRaw()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if !entries[i].IsDir() {
			continue
		}
		entries[i].Children = NoAccess
		n, err := s.countChildren(entries[i].Name)
		if err != nil {
			s.logger.Debug("cannot list directory", "name", entries[i].Name, "error", err)
			continue
		}
		entries[i].Children = n
	}
	return entries, nil
}

// listRaw is LIST plus parsing, without the per-directory child counts.
func (s *Session) listRaw() ([]Entry, error) {
	lines, err := s.conn.List("")
	if err != nil {
		return nil, err
	}
	return ParseListing(strings.Join(lines, "\n"), time.Now()), nil
}

func (s *Session) countChildren(name string) (n int, err error) {
	err = s.inDir(name, func() error {
		entries, err := s.listRaw()
		n = len(entries)
		return err
	})
	return n, err
}
