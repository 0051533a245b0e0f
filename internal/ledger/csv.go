package ledger

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/logging"
)

const (
	sessionHeaderPrefix = "# Session: "
	csvTimeLayout       = time.RFC3339
)

var csvHeader = []string{"RollNo", "Name", "Time", "Confidence", "Status"}

// CSVLedger keeps one CSV file per session under a root directory. Sessions are
// loaded from disk on first use and guarded by their own mutex.
type CSVLedger struct {
	root  string
	log   logrus.FieldLogger
	write func(f *os.File, b []byte) (int, error)

	mu       sync.Mutex
	sessions map[string]*csvSession
}

type csvSession struct {
	mu      sync.Mutex
	key     SessionKey
	path    string
	loaded  bool
	records []Record
	members map[string]struct{}
}

// NewCSVLedger creates a ledger rooted at dir. The directory is created lazily.
func NewCSVLedger(dir string, log logrus.FieldLogger) *CSVLedger {
	return &CSVLedger{
		root:     dir,
		log:      logging.OrDiscard(log),
		write:    (*os.File).Write,
		sessions: make(map[string]*csvSession),
	}
}

// Path returns the file that holds the session's records.
func (l *CSVLedger) Path(key SessionKey) string {
	return filepath.Join(l.root, key.RelPath())
}

func (l *CSVLedger) session(key SessionKey) *csvSession {
	enc := key.Encode()

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[enc]
	if !ok {
		s = &csvSession{key: key, path: l.Path(key)}
		l.sessions[enc] = s
	}
	return s
}

// IsMarked reports whether member (see MemberKey) already has a record in the session.
func (l *CSVLedger) IsMarked(_ context.Context, key SessionKey, member string) (bool, error) {
	s := l.session(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ensureLoaded(s)
	_, ok := s.members[member]
	return ok, nil
}

// MarkPresent appends a record unless the member is already marked in the session.
// The in-memory state changes only after the row is on disk.
func (l *CSVLedger) MarkPresent(_ context.Context, key SessionKey, m Mark) (MarkResult, error) {
	s := l.session(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ensureLoaded(s)
	member := m.Key()
	if _, ok := s.members[member]; ok {
		return AlreadyMarked, nil
	}

	rec := m.Record()
	if err := l.appendRecord(s, rec); err != nil {
		return 0, &WriteError{Session: key.Encode(), RollNo: m.RollNo, Err: err}
	}

	s.records = append(s.records, rec)
	s.members[member] = struct{}{}
	return Marked, nil
}

// Records returns the session's records in the order they were written.
func (l *CSVLedger) Records(_ context.Context, key SessionKey) ([]Record, error) {
	s := l.session(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ensureLoaded(s)
	return slices.Clone(s.records), nil
}

// Sessions scans the root directory for session files of the given date.
func (l *CSVLedger) Sessions(_ context.Context, date string) ([]SessionKey, error) {
	var keys []SessionKey
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == l.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".csv") || !strings.Contains(d.Name(), date) {
			return nil
		}
		key, err := readSessionHeader(path)
		if err != nil {
			l.log.WithError(err).WithField("file", path).Debug("skipping attendance file without session header")
			return nil
		}
		if key.Date == date {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan attendance directory: %w", err)
	}

	slices.SortFunc(keys, func(a, b SessionKey) int { return strings.Compare(a.Encode(), b.Encode()) })
	return keys, nil
}

// ensureLoaded reads the session file once. Malformed rows are skipped with a
// warning. A file without this session's header is moved aside and the session
// starts empty.
func (l *CSVLedger) ensureLoaded(s *csvSession) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.members = make(map[string]struct{})
	s.records = nil

	records, skipped, err := readRecords(s.path, s.key)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	entry := l.log.WithFields(logging.Fields{
		"session": s.key.Encode(),
		"file":    s.path,
	})
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		entry = entry.WithError(err)
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			entry.WithField("rename_error", renameErr.Error()).Warn("unreadable attendance file, starting empty session")
		} else {
			entry.WithField("moved_to", aside).Warn("unreadable attendance file moved aside, starting empty session")
		}
		return
	}
	if skipped > 0 {
		entry.WithField("skipped_rows", skipped).Warn("skipped malformed attendance rows")
	}

	for _, rec := range records {
		s.records = append(s.records, rec)
		s.members[MemberKey(rec.RollNo, rec.Name)] = struct{}{}
	}
}

// appendRecord writes one row, creating the file with its headers when empty.
// A failed write is truncated back to the previous size so no partial row is
// left behind.
func (l *CSVLedger) appendRecord(s *csvSession, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create attendance directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open attendance file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat attendance file: %w", err)
	}
	size := info.Size()

	var buf strings.Builder
	if size == 0 {
		buf.WriteString(sessionHeaderPrefix + s.key.Encode() + "\n")
		buf.WriteString(fmt.Sprintf("# Department: %s, Year: %s, Division: %s, Time Slot: %s\n",
			s.key.Department, s.key.Year, s.key.Division, s.key.TimeSlot))
	} else if !endsWithNewline(f, size) {
		// A fragment left by an earlier crash stays on its own line.
		buf.WriteString("\n")
	}
	w := csv.NewWriter(&buf)
	if size == 0 {
		_ = w.Write(csvHeader)
	}
	_ = w.Write([]string{
		rec.RollNo,
		rec.Name,
		rec.Timestamp.Format(csvTimeLayout),
		strconv.FormatFloat(rec.Confidence, 'f', 2, 64),
		rec.Outcome,
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode attendance row: %w", err)
	}

	if _, err := l.write(f, []byte(buf.String())); err != nil {
		return truncateTo(f, size, fmt.Errorf("write attendance row: %w", err))
	}
	if err := f.Sync(); err != nil {
		return truncateTo(f, size, fmt.Errorf("sync attendance file: %w", err))
	}
	return nil
}

func truncateTo(f *os.File, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		return errors.Join(cause, fmt.Errorf("truncate attendance file: %w", err))
	}
	return cause
}

func endsWithNewline(f *os.File, size int64) bool {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return true
	}
	return last[0] == '\n'
}

// readRecords parses a session file. The first line must be the session header
// of key. Rows that do not parse are counted in skipped and ignored.
func readRecords(path string, key SessionKey) (records []Record, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	got, err := parseSessionHeader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if got.Encode() != key.Encode() {
		return nil, 0, fmt.Errorf("parse %s: file belongs to session %s", path, got.Encode())
	}

	r := csv.NewReader(br)
	r.Comment = '#'
	r.FieldsPerRecord = len(csvHeader)

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			skipped++
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}
		if slices.Equal(row, csvHeader) {
			continue
		}

		ts, err := time.Parse(csvTimeLayout, row[2])
		if err != nil {
			skipped++
			continue
		}
		conf, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, Record{
			RollNo:     row[0],
			Name:       row[1],
			Timestamp:  ts,
			Confidence: conf,
			Outcome:    row[4],
		})
	}
	return records, skipped, nil
}

func readSessionHeader(path string) (SessionKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return SessionKey{}, err
	}
	defer f.Close()

	return parseSessionHeader(bufio.NewReader(f))
}

func parseSessionHeader(br *bufio.Reader) (SessionKey, error) {
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return SessionKey{}, err
	}
	enc, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), sessionHeaderPrefix)
	if !ok {
		return SessionKey{}, errors.New("missing session header")
	}
	return ParseSessionKey(enc)
}
