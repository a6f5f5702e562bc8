package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campuskit/timetable-api/internal/models"
	appErrors "github.com/campuskit/timetable-api/pkg/errors"
	"github.com/campuskit/timetable-api/pkg/export"
)

// ExportFormat selects the rendering backend for timetable exports.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type cohortSlotLister interface {
	ListByCohort(ctx context.Context, faculty models.Faculty, year, semester int) ([]models.TimetableSlot, error)
}

// ExportResult carries rendered bytes plus response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a cohort's timetable as a downloadable document.
type ExportService struct {
	slots      cohortSlotLister
	courses    courseReader
	classrooms classroomReader
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(slots cohortSlotLister, courses courseReader, classrooms classroomReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		slots:      slots,
		courses:    courses,
		classrooms: classrooms,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
	}
}

// ExportCohort renders the cohort timetable in the requested format.
func (s *ExportService) ExportCohort(ctx context.Context, faculty models.Faculty, year, semester int, format ExportFormat) (*ExportResult, error) {
	if !faculty.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid faculty")
	}
	if year < 1 || year > 4 || semester < 1 || semester > 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year or semester")
	}

	slots, err := s.slots.ListByCohort(ctx, faculty, year, semester)
	if err != nil {
		return nil, err
	}

	dataset := s.buildDataset(ctx, slots)
	title := fmt.Sprintf("%s timetable, year %d semester %d", faculty, year, semester)
	basename := fmt.Sprintf("timetable_%s_y%d_s%d", strings.ToLower(string(faculty)), year, semester)

	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: basename + ".csv"}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: basename + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ExportService) buildDataset(ctx context.Context, slots []models.TimetableSlot) export.Dataset {
	headers := []string{"Date", "Day", "Start", "End", "Type", "Course", "Classroom"}
	rows := make([]map[string]string, 0, len(slots))

	courseNames := map[string]string{}
	classroomNames := map[string]string{}

	for _, slot := range slots {
		courseName, ok := courseNames[slot.CourseID]
		if !ok {
			courseName = slot.CourseID
			if course, err := s.courses.FindByID(ctx, slot.CourseID); err == nil {
				courseName = course.CourseName
			}
			courseNames[slot.CourseID] = courseName
		}

		classroomName, ok := classroomNames[slot.ClassroomID]
		if !ok {
			classroomName = slot.ClassroomID
			if classroom, err := s.classrooms.FindByID(ctx, slot.ClassroomID); err == nil {
				classroomName = classroom.Name
			}
			classroomNames[slot.ClassroomID] = classroomName
		}

		rows = append(rows, map[string]string{
			"Date":      slot.DateKey(),
			"Day":       slot.Day,
			"Start":     slot.StartTime,
			"End":       slot.EndTime,
			"Type":      string(slot.Type),
			"Course":    courseName,
			"Classroom": classroomName,
		})
	}

	return export.Dataset{Headers: headers, Rows: rows}
}
