// Package export renders appointments into an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"boothbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	appointmentsSheet = "Appointments"
	slotsSheet        = "Slots"
)

var appointmentHeaders = []string{"Day", "Time", "Date", "Status", "Name", "Company", "Email", "Phone", "Message", "Created At", "ID"}

// Workbook builds the admin export: one sheet with every appointment and one
// with slot occupancy.
func Workbook(appts []*models.Appointment, slots []models.SlotAvailability, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()

	index, err := f.NewSheet(appointmentsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(slotsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	if err := writeAppointments(f, appts, loc, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSlots(f, slots, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write streams the workbook as xlsx.
func Write(w io.Writer, appts []*models.Appointment, slots []models.SlotAvailability, loc *time.Location) error {
	f, err := Workbook(appts, slots, loc)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeAppointments(f *excelize.File, appts []*models.Appointment, loc *time.Location, headerStyle int) error {
	if err := writeHeader(f, appointmentsSheet, appointmentHeaders, headerStyle); err != nil {
		return err
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "#999999", Strike: true}})

	for i, a := range appts {
		row := i + 2
		values := []interface{}{
			a.Day,
			a.Time,
			a.AppointmentDate.In(loc).Format("02.01.2006"),
			string(a.Status),
			a.Name,
			a.Company,
			a.Email,
			a.Phone,
			a.Message,
			a.CreatedAt.In(loc).Format("02.01.2006 15:04"),
			a.ID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(appointmentsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if a.Status == models.StatusCancelled {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(appointmentsSheet, cell, last, cancelledStyle)
		}
	}

	_ = f.SetColWidth(appointmentsSheet, "A", "D", 12)
	_ = f.SetColWidth(appointmentsSheet, "E", "H", 24)
	_ = f.SetColWidth(appointmentsSheet, "I", "I", 40)
	_ = f.SetColWidth(appointmentsSheet, "J", "K", 20)
	return f.AutoFilter(appointmentsSheet, fmt.Sprintf("A1:K%d", len(appts)+1), nil)
}

func writeSlots(f *excelize.File, slots []models.SlotAvailability, headerStyle int) error {
	if err := writeHeader(f, slotsSheet, []string{"Day", "Date", "Time", "Booked", "Available"}, headerStyle); err != nil {
		return err
	}

	fullStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	for i, s := range slots {
		row := i + 2
		available := "yes"
		if !s.Available {
			available = "no"
		}
		values := []interface{}{s.Day, s.Date, s.Time, s.Booked, available}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(slotsSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing slot row %d: %w", row, err)
		}
		if !s.Available {
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(slotsSheet, cell, last, fullStyle)
		}
	}
	_ = f.SetColWidth(slotsSheet, "A", "E", 14)
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &values); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}
