package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"boothbook/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	lastColumn     = "L"
	timestampShape = "2006-01-02 15:04"
)

var sheetHeaders = []interface{}{"ID", "Day", "Time", "Date", "Name", "Email", "Phone", "Company", "Message", "Status", "Created At", "Updated At"}

var errRowNotFound = errors.New("appointment row not found")

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsService mirrors appointments into a spreadsheet, one row each.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	location      *time.Location
	guard         *Guard
	logger        *zerolog.Logger

	rowCache map[string]int
	cacheMu  sync.RWMutex
}

func NewSheetsService(ctx context.Context, client *http.Client, spreadsheetID, sheetName string, loc *time.Location, guard *Guard, logger *zerolog.Logger) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, spreadsheetID, sheetName, loc, guard, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location, guard *Guard, logger *zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Appointments"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		location:      loc,
		guard:         guard,
		logger:        logger,
		rowCache:      make(map[string]int),
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	return s.guard.Do(func() error {
		_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		return nil
	})
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	var resp *sheets.ValueRange
	err := s.guard.Do(func() error {
		var err error
		resp, err = s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if id := cellString(row); id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertAppointment updates the appointment row or appends a new one.
func (s *SheetsService) UpsertAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt == nil {
		return fmt.Errorf("appointment is nil")
	}

	rowIdx, err := s.FindAppointmentRow(ctx, appt.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendAppointment(ctx, appt)
	}
	if err != nil {
		return err
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{s.rowValues(appt)}}
	return s.guard.Do(func() error {
		_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(rowIdx), valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

func (s *SheetsService) appendAppointment(ctx context.Context, appt *models.Appointment) error {
	valueRange := &sheets.ValueRange{Values: [][]interface{}{s.rowValues(appt)}}

	var resp *sheets.AppendValuesResponse
	err := s.guard.Do(func() error {
		var err error
		resp, err = s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), valueRange).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return err
	}

	if resp != nil && resp.Updates != nil {
		if m := updatedRowPattern.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(appt.ID, row)
			}
		}
	}
	return nil
}

// DeleteAppointment clears the row of a hard-deleted appointment.
func (s *SheetsService) DeleteAppointment(ctx context.Context, appointmentID string) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if errors.Is(err, errRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = s.guard.Do(func() error {
		_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		return err
	})
	if err == nil {
		s.deleteCachedRow(appointmentID)
	}
	return err
}

// ReplaceAll rewrites the whole sheet from the given appointments.
func (s *SheetsService) ReplaceAll(ctx context.Context, appts []*models.Appointment) error {
	values := [][]interface{}{sheetHeaders}
	for _, appt := range appts {
		values = append(values, s.rowValues(appt))
	}

	err := s.guard.Do(func() error {
		if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A:"+lastColumn), &sheets.ClearValuesRequest{}).
			Context(ctx).Do(); err != nil {
			return fmt.Errorf("unable to clear sheet: %w", err)
		}
		_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng(fmt.Sprintf("A1:%s%d", lastColumn, len(values))), &sheets.ValueRange{Values: values}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int, len(appts))
	for i, appt := range appts {
		s.rowCache[appt.ID] = i + 2
	}
	return nil
}

// FindAppointmentRow locates the 1-based row for an appointment id in column A.
func (s *SheetsService) FindAppointmentRow(ctx context.Context, appointmentID string) (int, error) {
	if appointmentID == "" {
		return 0, fmt.Errorf("appointment id is required")
	}
	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	var resp *sheets.ValueRange
	err := s.guard.Do(func() error {
		var err error
		resp, err = s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellString(row) == appointmentID {
			rowIdx := i + 1
			s.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsService) rowValues(appt *models.Appointment) []interface{} {
	return []interface{}{
		appt.ID,
		appt.Day,
		appt.Time,
		appt.AppointmentDate.In(s.location).Format(timestampShape),
		appt.Name,
		appt.Email,
		appt.Phone,
		appt.Company,
		appt.Message,
		string(appt.Status),
		appt.CreatedAt.In(s.location).Format(timestampShape),
		appt.UpdatedAt.In(s.location).Format(timestampShape),
	}
}

func (s *SheetsService) rng(a1 string) string {
	return "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'!" + a1
}

func (s *SheetsService) rowRange(row int) string {
	return s.rng(fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
