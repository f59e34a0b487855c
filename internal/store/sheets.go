package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore persists reminder rows in a Google Sheets worksheet. The first
// row is the header; data rows start at sheet row 2.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string

	mu   sync.Mutex
	cols map[string]int // header name -> zero-based column, rebuilt from each scan
}

// NewSheets opens the spreadsheet using a service-account credentials file.
func NewSheets(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service init: %w", err)
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

var _ RowStore = (*SheetsStore)(nil)

// Append writes one new row, laying fields out in the sheet's own header order.
func (s *SheetsStore) Append(ctx context.Context, rec Record) error {
	cols, err := s.header(ctx)
	if err != nil {
		return err
	}

	width := 0
	for _, idx := range cols {
		if idx+1 > width {
			width = idx + 1
		}
	}
	row := make([]interface{}, width)
	for i := range row {
		row[i] = ""
	}
	for name, value := range rec.Fields() {
		if idx, ok := cols[name]; ok {
			row[idx] = value
		}
	}

	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeName(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets append: %w", err)
	}
	return nil
}

// ScanAll reads the whole sheet and resolves every row against the header it
// was read with. An empty sheet gets its header row written on first contact.
func (s *SheetsStore) ScanAll(ctx context.Context) (Snapshot, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeName()).Context(ctx).Do()
	if err != nil {
		return Snapshot{}, fmt.Errorf("sheets scan: %w", err)
	}
	if len(resp.Values) == 0 {
		if err := s.writeHeader(ctx); err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Columns: append([]string(nil), Columns...)}, nil
	}

	cols := headerIndex(resp.Values[0])
	s.setCols(cols)

	snap := Snapshot{Columns: make([]string, 0, len(resp.Values[0]))}
	for _, v := range resp.Values[0] {
		snap.Columns = append(snap.Columns, cellString(v))
	}
	for i, raw := range resp.Values[1:] {
		fields := make(map[string]string, len(cols))
		for name, idx := range cols {
			if idx < len(raw) {
				fields[name] = cellString(raw[idx])
			} else {
				fields[name] = ""
			}
		}
		// header is sheet row 1, first data row is 2
		snap.Rows = append(snap.Rows, Row{Ref: RowRef(i + 2), Fields: fields})
	}
	return snap, nil
}

// UpdateCell writes a single cell addressed by row ref and header name.
func (s *SheetsStore) UpdateCell(ctx context.Context, ref RowRef, field, value string) error {
	cols, err := s.header(ctx)
	if err != nil {
		return err
	}
	idx, ok := cols[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if ref < 2 {
		return fmt.Errorf("%w: row %d", ErrRowNotFound, ref)
	}

	cell := fmt.Sprintf("%s!%s%d", s.rangeName(), columnName(idx), ref)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets update %s: %w", cell, err)
	}
	return nil
}

// header returns the cached column layout, fetching row 1 when no scan has run
// yet in this process.
func (s *SheetsStore) header(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	cached := s.cols
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	rng := fmt.Sprintf("%s!1:1", s.rangeName())
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets read header: %w", err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		if err := s.writeHeader(ctx); err != nil {
			return nil, err
		}
	} else {
		s.setCols(headerIndex(resp.Values[0]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, nil
}

func (s *SheetsStore) writeHeader(ctx context.Context) error {
	header := make([]interface{}, len(Columns))
	for i, name := range Columns {
		header[i] = name
	}
	rng := fmt.Sprintf("%s!A1", s.rangeName())
	vr := &sheets.ValueRange{Values: [][]interface{}{header}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets write header: %w", err)
	}
	s.setCols(headerIndex(header))
	return nil
}

func (s *SheetsStore) setCols(cols map[string]int) {
	s.mu.Lock()
	s.cols = cols
	s.mu.Unlock()
}

// rangeName is the sheet name rendered safely for A1 notation.
func (s *SheetsStore) rangeName() string {
	return quoteSheetName(s.sheetName)
}

var plainSheetName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteSheetName single-quotes sheet names that contain spaces, punctuation,
// non-ASCII characters, or a leading digit, doubling embedded quotes.
func quoteSheetName(name string) string {
	if plainSheetName.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// headerIndex builds the field-name-to-column mapping from a header row.
// Blank cells are skipped and the first occurrence wins on duplicates.
func headerIndex(row []interface{}) map[string]int {
	cols := make(map[string]int, len(row))
	for i, v := range row {
		name := strings.TrimSpace(cellString(v))
		if name == "" {
			continue
		}
		if _, dup := cols[name]; dup {
			continue
		}
		cols[name] = i
	}
	return cols
}

// columnName converts a zero-based column index to A1 notation (0 -> A, 26 -> AA).
func columnName(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}

func cellString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
