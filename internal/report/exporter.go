package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/campuskit/school-workflow/internal/application/port"
)

// Exporter writes workflow registers as Excel workbooks
type Exporter struct {
	instances port.InstanceRepository
	history   port.HistoryRepository
	outputDir string
	logger    *zap.Logger
}

// NewExporter creates a report exporter
func NewExporter(instances port.InstanceRepository, history port.HistoryRepository, outputDir string, logger *zap.Logger) *Exporter {
	return &Exporter{
		instances: instances,
		history:   history,
		outputDir: outputDir,
		logger:    logger,
	}
}

var registerHeaders = []string{
	"Instance ID", "Workflow Type", "Reference ID", "Current Stage",
	"Status", "Initiated By", "Created At", "Updated At",
}

var historyHeaders = []string{
	"Instance ID", "From Stage", "To Stage", "Reason", "Actor", "Timestamp",
}

// ExportRegister writes every instance of the given workflow type (all types
// when empty) with its full stage history to a workbook and returns the path.
func (e *Exporter) ExportRegister(ctx context.Context, workflowType string) (string, error) {
	instances, err := e.instances.List(ctx, workflowType, 10000, 0)
	if err != nil {
		return "", fmt.Errorf("failed to list instances: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const instanceSheet = "Instances"
	if err := f.SetSheetName("Sheet1", instanceSheet); err != nil {
		return "", fmt.Errorf("failed to rename sheet: %w", err)
	}

	for col, header := range registerHeaders {
		e.setCell(f, instanceSheet, cellRef(col, 1), header)
	}

	for i, instance := range instances {
		row := i + 2
		e.setCell(f, instanceSheet, cellRef(0, row), instance.ID)
		e.setCell(f, instanceSheet, cellRef(1, row), instance.WorkflowType)
		e.setCell(f, instanceSheet, cellRef(2, row), instance.ReferenceID)
		e.setCell(f, instanceSheet, cellRef(3, row), instance.CurrentStage)
		e.setCell(f, instanceSheet, cellRef(4, row), instance.Status)
		e.setCell(f, instanceSheet, cellRef(5, row), instance.InitiatedBy)
		e.setCell(f, instanceSheet, cellRef(6, row), instance.CreatedAt.Format("2006-01-02 15:04:05"))
		e.setCell(f, instanceSheet, cellRef(7, row), instance.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	const historySheet = "Stage History"
	if _, err := f.NewSheet(historySheet); err != nil {
		return "", fmt.Errorf("failed to create history sheet: %w", err)
	}

	for col, header := range historyHeaders {
		e.setCell(f, historySheet, cellRef(col, 1), header)
	}

	row := 2
	for _, instance := range instances {
		entries, err := e.history.GetByInstanceID(ctx, instance.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load history for instance %d: %w", instance.ID, err)
		}
		for _, entry := range entries {
			e.setCell(f, historySheet, cellRef(0, row), entry.InstanceID)
			e.setCell(f, historySheet, cellRef(1, row), entry.FromStage)
			e.setCell(f, historySheet, cellRef(2, row), entry.ToStage)
			e.setCell(f, historySheet, cellRef(3, row), entry.TransitionReason)
			e.setCell(f, historySheet, cellRef(4, row), entry.ActorID)
			e.setCell(f, historySheet, cellRef(5, row), entry.Timestamp.Format("2006-01-02 15:04:05"))
			row++
		}
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := "workflow_register"
	if workflowType != "" {
		name = workflowType + "_register"
	}
	outputPath := filepath.Join(e.outputDir, fmt.Sprintf("%s_%s.xlsx", name, time.Now().Format("20060102_150405")))

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	e.logger.Info("Workflow register exported",
		zap.String("workflow_type", workflowType),
		zap.Int("instance_count", len(instances)),
		zap.String("output_path", outputPath))

	return outputPath, nil
}

func (e *Exporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

// cellRef builds an A1-style reference from zero-based column and one-based row
func cellRef(col, row int) string {
	ref, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return ""
	}
	return ref
}
